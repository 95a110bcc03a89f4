package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
)

type topicRow struct {
	ID       string  `db:"id"`
	CourseID string  `db:"course_id"`
	Title    string  `db:"title"`
	Order    int     `db:"ord"`
	Weight   float64 `db:"weight"`
}

func (row topicRow) topic() course.Topic {
	return course.Topic{ID: row.ID, CourseID: row.CourseID, Title: row.Title, Order: row.Order, Weight: row.Weight}
}

type catalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) course.Store {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	q := repo.db.Rebind(`SELECT id, title FROM courses WHERE id = ?`)
	if err := sqlx.GetContext(ctx, repo.db, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return course.Course{}, core.NewNotFoundError("course")
		}
		return course.Course{}, core.NewStoreUnavailableError(err, "selecting course")
	}
	return c, nil
}

func (repo *catalogRepository) GetTopic(ctx context.Context, id string) (course.Topic, error) {
	var row topicRow
	q := repo.db.Rebind(`SELECT id, course_id, title, ord, weight FROM topics WHERE id = ?`)
	if err := sqlx.GetContext(ctx, repo.db, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return course.Topic{}, core.NewNotFoundError("topic")
		}
		return course.Topic{}, core.NewStoreUnavailableError(err, "selecting topic")
	}
	return row.topic(), nil
}

func (repo *catalogRepository) ListTopics(ctx context.Context, courseID string) ([]course.Topic, error) {
	var rows []topicRow
	q := repo.db.Rebind(`SELECT id, course_id, title, ord, weight FROM topics WHERE course_id = ? ORDER BY ord, id`)
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, courseID); err != nil {
		return nil, core.NewStoreUnavailableError(err, "selecting topics")
	}
	topics := make([]course.Topic, 0, len(rows))
	for _, row := range rows {
		topics = append(topics, row.topic())
	}
	return topics, nil
}

func (repo *catalogRepository) ListEnrolledCourses(ctx context.Context, studentID string) ([]course.Course, error) {
	courses := make([]course.Course, 0)
	q := repo.db.Rebind(`SELECT c.id, c.title FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = ? ORDER BY c.id`)
	if err := sqlx.SelectContext(ctx, repo.db, &courses, q, studentID); err != nil {
		return nil, core.NewStoreUnavailableError(err, "selecting enrolled courses")
	}
	return courses, nil
}

func (repo *catalogRepository) ListEnrolledStudents(ctx context.Context, courseID string) ([]string, error) {
	ids := make([]string, 0)
	q := repo.db.Rebind(`SELECT student_id FROM enrollments WHERE course_id = ? ORDER BY student_id`)
	if err := sqlx.SelectContext(ctx, repo.db, &ids, q, courseID); err != nil {
		return nil, core.NewStoreUnavailableError(err, "selecting enrolled students")
	}
	return ids, nil
}

func (repo *catalogRepository) UpsertCourse(ctx context.Context, c course.Course) error {
	q := repo.db.Rebind(`INSERT INTO courses (id, title) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title`)
	if _, err := repo.db.ExecContext(ctx, q, c.ID, c.Title); err != nil {
		return core.NewStoreUnavailableError(err, "upserting course")
	}
	return nil
}

// courseExists returns a *core.NotFoundError for an unknown course.
func (repo *catalogRepository) courseExists(ctx context.Context, id string) error {
	var n int
	q := repo.db.Rebind(`SELECT COUNT(*) FROM courses WHERE id = ?`)
	if err := sqlx.GetContext(ctx, repo.db, &n, q, id); err != nil {
		return core.NewStoreUnavailableError(err, "counting courses")
	}
	if n == 0 {
		return core.NewNotFoundError("course")
	}
	return nil
}

func (repo *catalogRepository) UpsertTopic(ctx context.Context, t course.Topic) error {
	if err := repo.courseExists(ctx, t.CourseID); err != nil {
		return err
	}
	q := repo.db.Rebind(`INSERT INTO topics (id, course_id, title, ord, weight) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET course_id = excluded.course_id, title = excluded.title,
		ord = excluded.ord, weight = excluded.weight`)
	if _, err := repo.db.ExecContext(ctx, q, t.ID, t.CourseID, t.Title, t.Order, t.EffectiveWeight()); err != nil {
		return core.NewStoreUnavailableError(err, "upserting topic")
	}
	return nil
}

func (repo *catalogRepository) Enroll(ctx context.Context, e course.Enrollment) error {
	if err := repo.courseExists(ctx, e.CourseID); err != nil {
		return err
	}
	q := repo.db.Rebind(`INSERT INTO enrollments (course_id, student_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if _, err := repo.db.ExecContext(ctx, q, e.CourseID, e.StudentID); err != nil {
		return core.NewStoreUnavailableError(err, "enrolling student")
	}
	return nil
}
