package inmemdb

import (
	"context"
	"sort"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
)

type catalogRepository struct {
	db *DB
}

func NewCatalogRepository(db *DB) course.Store {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return course.Course{}, core.NewNotFoundError("course")
}

func (repo *catalogRepository) GetTopic(_ context.Context, id string) (course.Topic, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.topics[id]; ok {
		return t, nil
	}
	return course.Topic{}, core.NewNotFoundError("topic")
}

func (repo *catalogRepository) ListTopics(_ context.Context, courseID string) ([]course.Topic, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	topics := make([]course.Topic, 0)
	for _, t := range repo.db.topics {
		if t.CourseID == courseID {
			topics = append(topics, t)
		}
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Order != topics[j].Order {
			return topics[i].Order < topics[j].Order
		}
		return topics[i].ID < topics[j].ID
	})
	return topics, nil
}

func (repo *catalogRepository) ListEnrolledCourses(_ context.Context, studentID string) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0)
	for courseID, students := range repo.db.enrollments {
		if !students[studentID] {
			continue
		}
		if c, ok := repo.db.courses[courseID]; ok {
			courses = append(courses, c)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

func (repo *catalogRepository) ListEnrolledStudents(_ context.Context, courseID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0, len(repo.db.enrollments[courseID]))
	for id := range repo.db.enrollments[courseID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *catalogRepository) UpsertCourse(_ context.Context, c course.Course) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.courses[c.ID] = c
	return nil
}

func (repo *catalogRepository) UpsertTopic(_ context.Context, t course.Topic) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[t.CourseID]; !ok {
		return core.NewNotFoundError("course")
	}
	repo.db.topics[t.ID] = t
	return nil
}

func (repo *catalogRepository) Enroll(_ context.Context, e course.Enrollment) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[e.CourseID]; !ok {
		return core.NewNotFoundError("course")
	}
	if repo.db.enrollments[e.CourseID] == nil {
		repo.db.enrollments[e.CourseID] = make(map[string]bool)
	}
	repo.db.enrollments[e.CourseID][e.StudentID] = true
	return nil
}
