package main

import (
	"database/sql"

	"github.com/trezcool/goose"

	"github.com/projectsmartedu/SmartEducation-sub001/storage/database"
)

var gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
	return goose.RunFS(command, db, database.Migrations, database.MigrationsDir(), args...)
} // mockable

func (cli *commandLine) migrate(args []string) error {
	st, err := cli.getStore()
	if err != nil {
		return err
	}
	if err = goose.SetDialect(st.db.DriverName()); err != nil {
		return err
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], st.db.DB, arguments...)
}
