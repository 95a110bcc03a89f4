package main

import (
	"fmt"

	echoapi "github.com/projectsmartedu/SmartEducation-sub001/apps/api/echo"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
)

// token prints a development token; real users get theirs from the auth service.
func (cli *commandLine) token(userID, roleName string) error {
	role, ok := user.ParseRole(roleName)
	if !ok {
		return fmt.Errorf("unknown role %q", roleName)
	}
	id := user.Identity{ID: userID, Roles: []string{role}}
	ss, err := echoapi.GenerateToken(echoapi.NewClaims(id, cli.conf), cli.conf.SecretKey)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, ss)
	return nil
}
