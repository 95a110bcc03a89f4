// Package importer loads the course catalog (courses, topics, enrollments) from an Excel or CSV sheet.
//
// Every row starts with its kind:
//
//	course | <courseId> | <title>
//	topic  | <topicId>  | <courseId> | <title> | <order> | <weight>
//	enroll | <courseId> | <studentId>
//
// A first row whose first cell is "kind" is treated as a header.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
)

const DefaultSheet = "Sheet1"

type Config struct {
	FilePath  string
	SheetName string // Excel only
}

type Result struct {
	Processed   int
	Courses     int
	Topics      int
	Enrollments int
	Errors      []string
}

type Importer struct {
	writer course.Writer
}

func New(writer course.Writer) *Importer {
	return &Importer{writer: writer}
}

// Import reads the file and writes every valid row. Bad rows are reported in Result.Errors and skipped.
func (imp *Importer) Import(ctx context.Context, conf Config) (*Result, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(conf.FilePath)) {
	case ".csv":
		rows, err = readCSV(conf.FilePath)
	case ".xlsx", ".xlsm":
		rows, err = readExcel(conf.FilePath, conf.SheetName)
	default:
		return nil, core.NewValidationError(errors.Errorf("unsupported catalog file %q", filepath.Base(conf.FilePath)))
	}
	if err != nil {
		return nil, err
	}
	return imp.importRows(ctx, rows)
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening excel file")
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = DefaultSheet
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening csv file")
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading csv")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (imp *Importer) importRows(ctx context.Context, rows [][]string) (*Result, error) {
	res := &Result{Errors: make([]string, 0)}
	for i, row := range rows {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "kind") {
			continue
		}
		if isBlank(row) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		if err := imp.importRow(ctx, row, res); err != nil {
			if _, ok := errors.Cause(err).(*core.StoreUnavailableError); ok {
				return res, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", i+1, err))
		}
	}
	return res, nil
}

func (imp *Importer) importRow(ctx context.Context, row []string, res *Result) error {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	switch strings.ToLower(cell(0)) {
	case "course":
		if cell(1) == "" {
			return errors.New("course id is required")
		}
		if err := imp.writer.UpsertCourse(ctx, course.Course{ID: cell(1), Title: cell(2)}); err != nil {
			return err
		}
		res.Courses++
	case "topic":
		if cell(1) == "" || cell(2) == "" {
			return errors.New("topic id and course id are required")
		}
		t := course.Topic{ID: cell(1), CourseID: cell(2), Title: cell(3), Weight: 1}
		if s := cell(4); s != "" {
			order, err := strconv.Atoi(s)
			if err != nil {
				return errors.Errorf("invalid order %q", s)
			}
			t.Order = order
		}
		if s := cell(5); s != "" {
			weight, err := strconv.ParseFloat(s, 64)
			if err != nil || weight <= 0 {
				return errors.Errorf("invalid weight %q", s)
			}
			t.Weight = weight
		}
		if err := imp.writer.UpsertTopic(ctx, t); err != nil {
			return err
		}
		res.Topics++
	case "enroll":
		if cell(1) == "" || cell(2) == "" {
			return errors.New("course id and student id are required")
		}
		if err := imp.writer.Enroll(ctx, course.Enrollment{CourseID: cell(1), StudentID: cell(2)}); err != nil {
			return err
		}
		res.Enrollments++
	default:
		return errors.Errorf("unknown row kind %q", cell(0))
	}
	return nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
