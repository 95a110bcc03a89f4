// Package course holds the read side of the course catalog: courses, their ordered topics and enrollments.
package course

import "context"

type (
	Course struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	Topic struct {
		ID       string  `json:"id"`
		CourseID string  `json:"courseId"`
		Title    string  `json:"title"`
		Order    int     `json:"order"`
		Weight   float64 `json:"weight"` // importance; 0 is read as 1
	}

	Enrollment struct {
		CourseID  string `json:"courseId"`
		StudentID string `json:"studentId"`
	}

	// Catalog is the read access the engine needs. Topics are returned ordered by Order then ID.
	Catalog interface {
		GetCourse(ctx context.Context, id string) (Course, error)
		GetTopic(ctx context.Context, id string) (Topic, error)
		ListTopics(ctx context.Context, courseID string) ([]Topic, error)
		ListEnrolledCourses(ctx context.Context, studentID string) ([]Course, error)
		// ListEnrolledStudents returns student ids ordered ascending.
		ListEnrolledStudents(ctx context.Context, courseID string) ([]string, error)
	}

	// Writer loads catalog data; it is only used by the importer.
	Writer interface {
		UpsertCourse(ctx context.Context, c Course) error
		UpsertTopic(ctx context.Context, t Topic) error
		Enroll(ctx context.Context, e Enrollment) error
	}

	Store interface {
		Catalog
		Writer
	}
)

// EffectiveWeight is the weight used for averaging.
func (t Topic) EffectiveWeight() float64 {
	if t.Weight <= 0 {
		return 1
	}
	return t.Weight
}
