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
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
)

const revisionColumns = `id, student_id, topic_id, course_id, status, last_outcome, interval_days, ease_factor,
	last_reviewed_at, next_due_at, streak, completions, skips, type, priority, notes, created_by, created_by_role,
	last_alert_level, last_alerted_at, version, created_at, updated_at`

type revisionRow struct {
	ID             string    `db:"id"`
	StudentID      string    `db:"student_id"`
	TopicID        string    `db:"topic_id"`
	CourseID       string    `db:"course_id"`
	Status         string    `db:"status"`
	LastOutcome    string    `db:"last_outcome"`
	IntervalDays   int       `db:"interval_days"`
	EaseFactor     float64   `db:"ease_factor"`
	LastReviewedAt null.Time `db:"last_reviewed_at"`
	NextDueAt      time.Time `db:"next_due_at"`
	Streak         int       `db:"streak"`
	Completions    int       `db:"completions"`
	Skips          int       `db:"skips"`
	Type           string    `db:"type"`
	Priority       string    `db:"priority"`
	Notes          string    `db:"notes"`
	CreatedBy      string    `db:"created_by"`
	CreatedByRole  string    `db:"created_by_role"`
	LastAlertLevel string    `db:"last_alert_level"`
	LastAlertedAt  null.Time `db:"last_alerted_at"`
	Version        int64     `db:"version"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func newRevisionRow(rec revision.Record) revisionRow {
	return revisionRow{
		ID:             rec.ID,
		StudentID:      rec.StudentID,
		TopicID:        rec.TopicID,
		CourseID:       rec.CourseID,
		Status:         string(rec.Status),
		LastOutcome:    string(rec.LastOutcome),
		IntervalDays:   rec.IntervalDays,
		EaseFactor:     rec.EaseFactor,
		LastReviewedAt: utcNull(rec.LastReviewedAt),
		NextDueAt:      rec.NextDueAt.UTC(),
		Streak:         rec.Streak,
		Completions:    rec.Completions,
		Skips:          rec.Skips,
		Type:           string(rec.Type),
		Priority:       string(rec.Priority),
		Notes:          rec.Notes,
		CreatedBy:      rec.CreatedBy,
		CreatedByRole:  rec.CreatedByRole,
		LastAlertLevel: string(rec.LastAlertLevel),
		LastAlertedAt:  utcNull(rec.LastAlertedAt),
		Version:        rec.Version,
		CreatedAt:      rec.CreatedAt.UTC(),
		UpdatedAt:      rec.UpdatedAt.UTC(),
	}
}

func (row revisionRow) record() revision.Record {
	return revision.Record{
		ID:             row.ID,
		StudentID:      row.StudentID,
		TopicID:        row.TopicID,
		CourseID:       row.CourseID,
		Status:         revision.Status(row.Status),
		LastOutcome:    progress.Outcome(row.LastOutcome),
		IntervalDays:   row.IntervalDays,
		EaseFactor:     row.EaseFactor,
		LastReviewedAt: utcPtr(row.LastReviewedAt),
		NextDueAt:      row.NextDueAt.UTC(),
		Streak:         row.Streak,
		Completions:    row.Completions,
		Skips:          row.Skips,
		Type:           revision.Type(row.Type),
		Priority:       revision.Priority(row.Priority),
		Notes:          row.Notes,
		CreatedBy:      row.CreatedBy,
		CreatedByRole:  row.CreatedByRole,
		LastAlertLevel: revision.AlertLevel(row.LastAlertLevel),
		LastAlertedAt:  utcPtr(row.LastAlertedAt),
		Version:        row.Version,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func utcNull(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

type revisionRepository struct {
	db *sqlx.DB
}

func NewRevisionRepository(db *sqlx.DB) revision.Repository {
	return &revisionRepository{db: db}
}

func (repo *revisionRepository) Create(ctx context.Context, recs ...revision.Record) error {
	q := `INSERT INTO revisions (` + revisionColumns + `) VALUES (:id, :student_id, :topic_id, :course_id, :status,
		:last_outcome, :interval_days, :ease_factor, :last_reviewed_at, :next_due_at, :streak, :completions, :skips,
		:type, :priority, :notes, :created_by, :created_by_role, :last_alert_level, :last_alerted_at, :version,
		:created_at, :updated_at)`

	return withTx(ctx, repo.db, func(ctx context.Context) error {
		exec := getExec(ctx, repo.db)
		for _, rec := range recs {
			if _, err := sqlx.NamedExecContext(ctx, exec, q, newRevisionRow(rec)); err != nil {
				if isUniqueViolation(err) {
					return revision.ErrDuplicate
				}
				return core.NewStoreUnavailableError(err, "inserting revision")
			}
		}
		return nil
	})
}

func (repo *revisionRepository) Get(ctx context.Context, id string) (revision.Record, error) {
	exec := getExec(ctx, repo.db)
	var row revisionRow
	q := exec.Rebind(`SELECT ` + revisionColumns + ` FROM revisions WHERE id = ?`)
	if err := sqlx.GetContext(ctx, exec, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return revision.Record{}, core.NewNotFoundError("revision")
		}
		return revision.Record{}, core.NewStoreUnavailableError(err, "selecting revision")
	}
	return row.record(), nil
}

func (repo *revisionRepository) Update(ctx context.Context, rec revision.Record) (revision.Record, error) {
	q := `UPDATE revisions SET status = :status, last_outcome = :last_outcome, interval_days = :interval_days,
		ease_factor = :ease_factor, last_reviewed_at = :last_reviewed_at, next_due_at = :next_due_at, streak = :streak,
		completions = :completions, skips = :skips, type = :type, priority = :priority, notes = :notes,
		last_alert_level = :last_alert_level, last_alerted_at = :last_alerted_at, updated_at = :updated_at,
		version = version + 1
		WHERE id = :id AND version = :version`

	exec := getExec(ctx, repo.db)
	res, err := sqlx.NamedExecContext(ctx, exec, q, newRevisionRow(rec))
	if err != nil {
		return revision.Record{}, core.NewStoreUnavailableError(err, "updating revision")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return revision.Record{}, core.NewStoreUnavailableError(err, "updating revision")
	}
	if n == 0 {
		if _, err = repo.Get(ctx, rec.ID); err != nil {
			return revision.Record{}, err
		}
		return revision.Record{}, core.ErrVersionMismatch
	}
	rec.Version++
	return rec, nil
}

func (repo *revisionRepository) Delete(ctx context.Context, id string) error {
	exec := getExec(ctx, repo.db)
	res, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM revisions WHERE id = ?`), id)
	if err != nil {
		return core.NewStoreUnavailableError(err, "deleting revision")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("revision")
	}
	return nil
}

func (repo *revisionRepository) Query(ctx context.Context, filter revision.QueryFilter) ([]revision.Record, error) {
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
	if filter.DueBefore != nil {
		where = append(where, "next_due_at <= ?")
		args = append(args, filter.DueBefore.UTC())
	}
	q := `SELECT ` + revisionColumns + ` FROM revisions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY next_due_at, id`

	exec := getExec(ctx, repo.db)
	var rows []revisionRow
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(q), args...); err != nil {
		return nil, core.NewStoreUnavailableError(err, "selecting revisions")
	}
	recs := make([]revision.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}
