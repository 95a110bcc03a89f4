// Package knowledge rolls mastery and revision state up into per-course maps. Nothing here is stored;
// every view is rebuilt from the catalog, the progress entries and the revision records on read.
package knowledge

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
)

var NowFunc = func() time.Time { return time.Now().UTC() } // mockable

type DueStatus string

const (
	DueNone     DueStatus = "none" // no revision scheduled
	DueUpcoming DueStatus = "upcoming"
	DueNow      DueStatus = "due"
	DueOverdue  DueStatus = "overdue"
)

type (
	TopicView struct {
		TopicID      string         `json:"topicId"`
		Title        string         `json:"title"`
		Order        int            `json:"order"`
		Weight       float64        `json:"weight"`
		MasteryScore int            `json:"masteryScore"`
		State        progress.State `json:"state"`
		DueStatus    DueStatus      `json:"dueStatus"`
		NextDueAt    *time.Time     `json:"nextDueAt"`
		DaysUntilDue *int           `json:"daysUntilDue"`
	}

	CourseMap struct {
		CourseID       string      `json:"courseId"`
		CourseTitle    string      `json:"courseTitle"`
		Topics         []TopicView `json:"topics"`
		AverageMastery float64     `json:"averageMastery"`
		Mastered       int         `json:"mastered"`
		InProgress     int         `json:"inProgress"`
		NotStarted     int         `json:"notStarted"`
		DueCount       int         `json:"dueCount"`
		OverdueCount   int         `json:"overdueCount"`

		weightSum   float64
		weightedSum float64
	}

	Overview struct {
		Courses        []CourseMap `json:"courses"`
		AverageMastery float64     `json:"averageMastery"`
		TotalTopics    int         `json:"totalTopics"`
		DueCount       int         `json:"dueCount"`
		OverdueCount   int         `json:"overdueCount"`
	}

	StudentMap struct {
		StudentID string    `json:"studentId"`
		Map       CourseMap `json:"map"`
	}

	ClassProgress struct {
		CourseID     string       `json:"courseId"`
		CourseTitle  string       `json:"courseTitle"`
		Students     []StudentMap `json:"students"`
		ClassAverage float64      `json:"classAverage"`
	}
)

type Aggregator struct {
	catalog   course.Catalog
	progress  progress.Repository
	revisions revision.Repository
	windows   revision.Windows
}

func NewAggregator(
	conf *core.Config,
	catalog course.Catalog,
	progressRepo progress.Repository,
	revisionRepo revision.Repository,
) *Aggregator {
	return &Aggregator{
		catalog:   catalog,
		progress:  progressRepo,
		revisions: revisionRepo,
		windows:   revision.NewWindows(conf.Deadline),
	}
}

// BuildMap builds the knowledge map of a student on one course. Topics without progress count as 0.
func (agg *Aggregator) BuildMap(ctx context.Context, studentID, courseID string) (CourseMap, error) {
	c, err := agg.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return CourseMap{}, errors.Wrap(err, "getting course")
	}
	return agg.buildMap(ctx, studentID, c, NowFunc())
}

func (agg *Aggregator) buildMap(ctx context.Context, studentID string, c course.Course, now time.Time) (CourseMap, error) {
	topics, err := agg.catalog.ListTopics(ctx, c.ID)
	if err != nil {
		return CourseMap{}, errors.Wrap(err, "listing topics")
	}
	entries, err := agg.progress.Query(ctx, progress.QueryFilter{StudentID: studentID, CourseID: c.ID})
	if err != nil {
		return CourseMap{}, errors.Wrap(err, "querying progress")
	}
	recs, err := agg.revisions.Query(ctx, revision.QueryFilter{StudentID: studentID, CourseID: c.ID})
	if err != nil {
		return CourseMap{}, errors.Wrap(err, "querying revisions")
	}

	scores := make(map[string]int, len(entries))
	for _, e := range entries {
		scores[e.TopicID] = e.MasteryScore
	}
	schedule := make(map[string]revision.Record, len(recs))
	for _, rec := range recs {
		schedule[rec.TopicID] = rec
	}

	m := CourseMap{CourseID: c.ID, CourseTitle: c.Title, Topics: make([]TopicView, 0, len(topics))}
	for _, t := range topics {
		score := scores[t.ID]
		view := TopicView{
			TopicID:      t.ID,
			Title:        t.Title,
			Order:        t.Order,
			Weight:       t.EffectiveWeight(),
			MasteryScore: score,
			State:        progress.StateOf(score),
			DueStatus:    DueNone,
		}
		if rec, ok := schedule[t.ID]; ok {
			due := rec.NextDueAt
			days := revision.DaysUntilDue(rec, now)
			view.NextDueAt = &due
			view.DaysUntilDue = &days
			switch {
			case agg.windows.IsOverdue(rec, now):
				view.DueStatus = DueOverdue
				m.OverdueCount++
				m.DueCount++
			case agg.windows.IsDue(rec, now):
				view.DueStatus = DueNow
				m.DueCount++
			default:
				view.DueStatus = DueUpcoming
			}
		}
		switch view.State {
		case progress.StateMastered:
			m.Mastered++
		case progress.StateInProgress:
			m.InProgress++
		default:
			m.NotStarted++
		}
		m.weightSum += view.Weight
		m.weightedSum += view.Weight * float64(score)
		m.Topics = append(m.Topics, view)
	}
	if m.weightSum > 0 {
		m.AverageMastery = round2(m.weightedSum / m.weightSum)
	}
	return m, nil
}

// BuildOverview builds the maps of every course the student is enrolled in, or only courseID when set.
func (agg *Aggregator) BuildOverview(ctx context.Context, studentID, courseID string) (Overview, error) {
	var courses []course.Course
	if courseID != "" {
		c, err := agg.catalog.GetCourse(ctx, courseID)
		if err != nil {
			return Overview{}, errors.Wrap(err, "getting course")
		}
		courses = []course.Course{c}
	} else {
		var err error
		if courses, err = agg.catalog.ListEnrolledCourses(ctx, studentID); err != nil {
			return Overview{}, errors.Wrap(err, "listing enrolled courses")
		}
	}

	now := NowFunc()
	ov := Overview{Courses: make([]CourseMap, 0, len(courses))}
	var weightSum, weightedSum float64
	for _, c := range courses {
		m, err := agg.buildMap(ctx, studentID, c, now)
		if err != nil {
			return Overview{}, err
		}
		ov.TotalTopics += len(m.Topics)
		ov.DueCount += m.DueCount
		ov.OverdueCount += m.OverdueCount
		weightSum += m.weightSum
		weightedSum += m.weightedSum
		ov.Courses = append(ov.Courses, m)
	}
	if weightSum > 0 {
		ov.AverageMastery = round2(weightedSum / weightSum)
	}
	return ov, nil
}

// ClassProgress builds the map of every enrolled student, ordered by student id, for staff.
func (agg *Aggregator) ClassProgress(ctx context.Context, caller user.Identity, courseID string) (ClassProgress, error) {
	if d := user.Authorize(caller, user.StaffRoles...); !d.Allowed {
		return ClassProgress{}, core.NewForbiddenError(d.Reason)
	}
	c, err := agg.catalog.GetCourse(ctx, courseID)
	if err != nil {
		return ClassProgress{}, errors.Wrap(err, "getting course")
	}
	students, err := agg.catalog.ListEnrolledStudents(ctx, courseID)
	if err != nil {
		return ClassProgress{}, errors.Wrap(err, "listing enrolled students")
	}
	sort.Strings(students)

	now := NowFunc()
	cp := ClassProgress{CourseID: c.ID, CourseTitle: c.Title, Students: make([]StudentMap, 0, len(students))}
	var sum float64
	for _, sid := range students {
		m, err := agg.buildMap(ctx, sid, c, now)
		if err != nil {
			return ClassProgress{}, err
		}
		sum += m.AverageMastery
		cp.Students = append(cp.Students, StudentMap{StudentID: sid, Map: m})
	}
	if len(cp.Students) > 0 {
		cp.ClassAverage = round2(sum / float64(len(cp.Students)))
	}
	return cp, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
