package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
)

const progressColumns = `student_id, topic_id, course_id, mastery_score, attempts, skips, time_spent_minutes,
	last_activity_at, version, updated_at`

type progressRow struct {
	StudentID        string    `db:"student_id"`
	TopicID          string    `db:"topic_id"`
	CourseID         string    `db:"course_id"`
	MasteryScore     int       `db:"mastery_score"`
	Attempts         int       `db:"attempts"`
	Skips            int       `db:"skips"`
	TimeSpentMinutes int       `db:"time_spent_minutes"`
	LastActivityAt   null.Time `db:"last_activity_at"`
	Version          int64     `db:"version"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func newProgressRow(e progress.Entry) progressRow {
	return progressRow{
		StudentID:        e.StudentID,
		TopicID:          e.TopicID,
		CourseID:         e.CourseID,
		MasteryScore:     e.MasteryScore,
		Attempts:         e.Attempts,
		Skips:            e.Skips,
		TimeSpentMinutes: e.TimeSpentMinutes,
		LastActivityAt:   utcNull(e.LastActivityAt),
		Version:          e.Version,
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
}

func (row progressRow) entry() progress.Entry {
	return progress.Entry{
		StudentID:        row.StudentID,
		TopicID:          row.TopicID,
		CourseID:         row.CourseID,
		MasteryScore:     row.MasteryScore,
		Attempts:         row.Attempts,
		Skips:            row.Skips,
		TimeSpentMinutes: row.TimeSpentMinutes,
		LastActivityAt:   utcPtr(row.LastActivityAt),
		Version:          row.Version,
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
}

type progressRepository struct {
	db *sqlx.DB
}

func NewProgressRepository(db *sqlx.DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) Get(ctx context.Context, studentID, topicID string) (progress.Entry, error) {
	exec := getExec(ctx, repo.db)
	var row progressRow
	q := exec.Rebind(`SELECT ` + progressColumns + ` FROM progress WHERE student_id = ? AND topic_id = ?`)
	if err := sqlx.GetContext(ctx, exec, &row, q, studentID, topicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.Entry{}, core.NewNotFoundError("progress")
		}
		return progress.Entry{}, core.NewStoreUnavailableError(err, "selecting progress")
	}
	return row.entry(), nil
}

func (repo *progressRepository) Save(ctx context.Context, e progress.Entry) (progress.Entry, error) {
	exec := getExec(ctx, repo.db)
	if e.Version == 0 {
		e.Version = 1
		q := `INSERT INTO progress (` + progressColumns + `) VALUES (:student_id, :topic_id, :course_id, :mastery_score,
			:attempts, :skips, :time_spent_minutes, :last_activity_at, :version, :updated_at)`
		if _, err := sqlx.NamedExecContext(ctx, exec, q, newProgressRow(e)); err != nil {
			if isUniqueViolation(err) {
				return progress.Entry{}, core.ErrVersionMismatch
			}
			return progress.Entry{}, core.NewStoreUnavailableError(err, "inserting progress")
		}
		return e, nil
	}

	q := `UPDATE progress SET mastery_score = :mastery_score, attempts = :attempts, skips = :skips,
		time_spent_minutes = :time_spent_minutes, last_activity_at = :last_activity_at, updated_at = :updated_at,
		version = version + 1
		WHERE student_id = :student_id AND topic_id = :topic_id AND version = :version`
	res, err := sqlx.NamedExecContext(ctx, exec, q, newProgressRow(e))
	if err != nil {
		return progress.Entry{}, core.NewStoreUnavailableError(err, "updating progress")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return progress.Entry{}, core.NewStoreUnavailableError(err, "updating progress")
	}
	if n == 0 {
		return progress.Entry{}, core.ErrVersionMismatch
	}
	e.Version++
	return e, nil
}

func (repo *progressRepository) Query(ctx context.Context, filter progress.QueryFilter) ([]progress.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.StudentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		where = append(where, "course_id = ?")
		args = append(args, filter.CourseID)
	}
	q := `SELECT ` + progressColumns + ` FROM progress`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY student_id, topic_id`

	exec := getExec(ctx, repo.db)
	var rows []progressRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(q), args...); err != nil {
		return nil, core.NewStoreUnavailableError(err, "selecting progress")
	}
	entries := make([]progress.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}
