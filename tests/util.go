package testutil

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	logsvc "github.com/projectsmartedu/SmartEducation-sub001/services/logger"
)

// NewLogger returns a logger that prints nothing and never reports to Rollbar.
func NewLogger() core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

type TopicSeed struct {
	ID     string
	Weight float64
}

// CreateCourse adds a course with its topics (in order) and enrolls the students.
func CreateCourse(t *testing.T, store course.Writer, courseID string, topics []TopicSeed, students ...string) {
	t.Helper()
	ctx := context.Background()
	if err := store.UpsertCourse(ctx, course.Course{ID: courseID, Title: "Course " + courseID}); err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	for i, tp := range topics {
		topic := course.Topic{ID: tp.ID, CourseID: courseID, Title: "Topic " + tp.ID, Order: i + 1, Weight: tp.Weight}
		if err := store.UpsertTopic(ctx, topic); err != nil {
			t.Fatalf("CreateCourse() failed: %v", err)
		}
	}
	for _, id := range students {
		if err := store.Enroll(ctx, course.Enrollment{CourseID: courseID, StudentID: id}); err != nil {
			t.Fatalf("CreateCourse() failed: %v", err)
		}
	}
}
