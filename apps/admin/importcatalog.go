package main

import (
	"context"
	"fmt"

	"github.com/projectsmartedu/SmartEducation-sub001/services/importer"
)

func (cli *commandLine) importCatalog(file, sheet string) error {
	st, err := cli.getStore()
	if err != nil {
		return err
	}
	res, err := importer.New(st.catalog).Import(context.Background(), importer.Config{FilePath: file, SheetName: sheet})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "rows: %d, courses: %d, topics: %d, enrollments: %d\n",
		res.Processed, res.Courses, res.Topics, res.Enrollments)
	for _, msg := range res.Errors {
		fmt.Fprintln(cli.out, "  "+msg)
	}
	return nil
}
