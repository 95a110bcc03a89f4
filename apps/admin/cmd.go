package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	"github.com/projectsmartedu/SmartEducation-sub001/storage/database"
	sqlxrepos "github.com/projectsmartedu/SmartEducation-sub001/storage/database/sqlx"
)

var errHelp = errors.New("help provided")

// store is the SQL store the commands work on. It is opened on first use.
type store struct {
	db        *sqlx.DB
	catalog   course.Store
	revisions revision.Repository
}

func openStore(conf *core.Config) (*store, error) {
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	return &store{
		db:        db,
		catalog:   sqlxrepos.NewCatalogRepository(db),
		revisions: sqlxrepos.NewRevisionRepository(db),
	}, nil
}

type commandLine struct {
	conf      *core.Config
	logger    core.Logger
	out       io.Writer
	openStore func(conf *core.Config) (*store, error) // mockable
	store     *store
}

func newCommandLine(conf *core.Config, logger core.Logger, out io.Writer) *commandLine {
	return &commandLine{conf: conf, logger: logger, out: out, openStore: openStore}
}

func (cli *commandLine) getStore() (*store, error) {
	if cli.store != nil {
		return cli.store, nil
	}
	st, err := cli.openStore(cli.conf)
	if err != nil {
		return nil, err
	}
	cli.store = st
	return st, nil
}

func (cli *commandLine) close() {
	if cli.store != nil && cli.store.db != nil {
		_ = cli.store.db.Close()
	}
	cli.store = nil
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a database migration command (up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version)")
	fmt.Fprintln(cli.out, "  scan - run one deadline scan now")
	fmt.Fprintln(cli.out, "  importcatalog -file FILE [-sheet SHEET] - import courses, topics and enrollments from an .xlsx or .csv file")
	fmt.Fprintln(cli.out, "  token -user ID -role student|teacher|admin - print a signed API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("importcatalog", flag.ContinueOnError)
	importCmd.SetOutput(cli.out)
	importFile := importCmd.String("file", "", "The .xlsx or .csv catalog file.")
	importSheet := importCmd.String("sheet", "", "The Excel sheet to read (default Sheet1).")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenUser := tokenCmd.String("user", "", "The user id carried by the token.")
	tokenRole := tokenCmd.String("role", "", "The role family: student, teacher or admin.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "scan":
		return cli.scan()
	case "importcatalog":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importCatalog(*importFile, *importSheet)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUser == "" || *tokenRole == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUser, *tokenRole)
	default:
		cli.printUsage()
		return errHelp
	}
}
