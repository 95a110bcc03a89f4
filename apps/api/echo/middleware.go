package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
)

// rolesMiddleware lets the request through when the caller holds one of roles.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := getContextIdentity(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context identity")
			}
			if d := user.Authorize(id, roles...); !d.Allowed {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func studentMiddleware() echo.MiddlewareFunc {
	return rolesMiddleware(user.StudentRoles...)
}

func staffMiddleware() echo.MiddlewareFunc {
	return rolesMiddleware(user.StaffRoles...)
}

// queryTokenMiddleware accepts the token as ?token= for clients that cannot set headers (EventSource).
func queryTokenMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		if req.Header.Get(echo.HeaderAuthorization) == "" {
			if token := strings.TrimSpace(ctx.QueryParam("token")); token != "" {
				req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
			}
		}
		return next(ctx)
	}
}
