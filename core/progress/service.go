package progress

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
)

var NowFunc = func() time.Time { return time.Now().UTC() } // mockable

type (
	Repository interface {
		// Get returns a *core.NotFoundError when the student has no entry for the topic.
		Get(ctx context.Context, studentID, topicID string) (Entry, error)
		// Save inserts an entry with Version 0 and otherwise updates it if its stored version still equals e.Version.
		// It returns core.ErrVersionMismatch when a concurrent writer won.
		Save(ctx context.Context, e Entry) (Entry, error)
		Query(ctx context.Context, filter QueryFilter) ([]Entry, error)
	}

	Service struct {
		repo       Repository
		catalog    course.Catalog
		tx         core.TxRunner
		curve      Curve
		maxRetries int
		validate   *validator.Validate
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	catalog course.Catalog,
	tx core.TxRunner,
	validate *validator.Validate,
) *Service {
	retries := conf.Store.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Service{
		repo:       repo,
		catalog:    catalog,
		tx:         tx,
		curve:      NewCurve(conf.Mastery),
		maxRetries: retries,
		validate:   validate,
	}
}

func (svc *Service) Curve() Curve {
	return svc.curve
}

// getOrNew returns the stored entry, or a fresh zero entry (Version 0) when there is none.
func (svc *Service) getOrNew(ctx context.Context, studentID, topicID, courseID string) (Entry, error) {
	e, err := svc.repo.Get(ctx, studentID, topicID)
	if err == nil {
		return e, nil
	}
	if core.IsNotFound(err) {
		return Entry{StudentID: studentID, TopicID: topicID, CourseID: courseID}, nil
	}
	return Entry{}, err
}

// RecordOutcome applies a review outcome to the entry. It joins the unit of work carried by ctx,
// so a version mismatch is returned to the caller, who owns the retry.
func (svc *Service) RecordOutcome(ctx context.Context, key Key, courseID string, outcome Outcome, act Activity) (Entry, error) {
	e, err := svc.getOrNew(ctx, key.StudentID, key.TopicID, courseID)
	if err != nil {
		return Entry{}, errors.Wrap(err, "getting progress entry")
	}

	now := NowFunc()
	switch outcome {
	case OutcomeCompleted:
		e.MasteryScore = svc.curve.Gain(e.MasteryScore)
		if act.Score != nil && clamp(*act.Score) > e.MasteryScore {
			e.MasteryScore = clamp(*act.Score)
		}
		e.Attempts++
	case OutcomeSkipped:
		e.Skips++
	default:
		return Entry{}, core.NewValidationError(errors.Errorf("unknown outcome %q", outcome))
	}
	if act.TimeSpentMinutes > 0 {
		e.TimeSpentMinutes += act.TimeSpentMinutes
	}
	e.LastActivityAt = &now
	e.UpdatedAt = now

	return svc.repo.Save(ctx, e)
}

// Update applies a manual report: a quiz score raises mastery to at least that score and counts an attempt.
func (svc *Service) Update(ctx context.Context, caller user.Identity, topicID string, data Update) (Entry, error) {
	if d := user.Authorize(caller, user.RoleStudent); !d.Allowed {
		return Entry{}, core.NewForbiddenError(d.Reason)
	}
	if err := data.Validate(svc.validate); err != nil {
		return Entry{}, err
	}

	topic, err := svc.catalog.GetTopic(ctx, topicID)
	if err != nil {
		return Entry{}, errors.Wrap(err, "getting topic")
	}
	if err = svc.CheckEnrolled(ctx, caller.ID, topic.CourseID); err != nil {
		return Entry{}, err
	}

	var saved Entry
	err = svc.retry(ctx, func(ctx context.Context) error {
		e, err := svc.getOrNew(ctx, caller.ID, topic.ID, topic.CourseID)
		if err != nil {
			return errors.Wrap(err, "getting progress entry")
		}
		now := NowFunc()
		if data.Score != nil {
			if *data.Score > e.MasteryScore {
				e.MasteryScore = clamp(*data.Score)
			}
			e.Attempts++
		}
		if data.TimeSpentMinutes != nil {
			e.TimeSpentMinutes += *data.TimeSpentMinutes
		}
		e.LastActivityAt = &now
		e.UpdatedAt = now
		saved, err = svc.repo.Save(ctx, e)
		return err
	})
	return saved, err
}

// CheckEnrolled returns a *core.NotFoundError for an unknown course and a *core.ForbiddenError
// when the student is not enrolled in it.
func (svc *Service) CheckEnrolled(ctx context.Context, studentID, courseID string) error {
	courses, err := svc.catalog.ListEnrolledCourses(ctx, studentID)
	if err != nil {
		return errors.Wrap(err, "listing enrolled courses")
	}
	for _, c := range courses {
		if c.ID == courseID {
			return nil
		}
	}
	if _, err = svc.catalog.GetCourse(ctx, courseID); err != nil {
		return errors.Wrap(err, "getting course")
	}
	return core.NewForbiddenError("not enrolled in this course")
}

// retry runs fn in its own unit of work until it stops losing version races.
func (svc *Service) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; attempt < svc.maxRetries; attempt++ {
		err := svc.tx.RunInTx(ctx, fn)
		if errors.Cause(err) != core.ErrVersionMismatch {
			return err
		}
	}
	return core.NewConflictError("progress was modified concurrently, please retry")
}

// Decay lowers the mastery of each keyed entry by the configured decay rate. It is a no-op when decay is disabled.
// Entries that keep losing version races are left for the next run; it returns how many entries changed.
func (svc *Service) Decay(ctx context.Context, keys []Key) (int, error) {
	if svc.curve.DecayRate <= 0 {
		return 0, nil
	}
	var decayed int
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return decayed, err
		}
		var changed bool
		err := svc.retry(ctx, func(ctx context.Context) error {
			changed = false
			e, err := svc.repo.Get(ctx, key.StudentID, key.TopicID)
			if err != nil {
				if core.IsNotFound(err) {
					return nil
				}
				return err
			}
			score := svc.curve.Decay(e.MasteryScore)
			if score == e.MasteryScore {
				return nil
			}
			e.MasteryScore = score
			e.UpdatedAt = NowFunc()
			if _, err = svc.repo.Save(ctx, e); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			if core.IsConflict(err) {
				continue
			}
			return decayed, errors.Wrap(err, "decaying progress entry")
		}
		if changed {
			decayed++
		}
	}
	return decayed, nil
}

// List returns the caller's entries, optionally limited to one course.
func (svc *Service) List(ctx context.Context, studentID, courseID string) ([]Entry, error) {
	entries, err := svc.repo.Query(ctx, QueryFilter{StudentID: studentID, CourseID: courseID})
	if err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	sortEntries(entries)
	return entries, nil
}

// ListForStudent is the staff view of a student's entries.
func (svc *Service) ListForStudent(ctx context.Context, caller user.Identity, studentID string) ([]Entry, error) {
	if d := user.Authorize(caller, user.StaffRoles...); !d.Allowed {
		return nil, core.NewForbiddenError(d.Reason)
	}
	return svc.List(ctx, studentID, "")
}

// Stats summarizes the student's mastery over every topic of their enrolled courses.
func (svc *Service) Stats(ctx context.Context, studentID string) (Stats, error) {
	courses, err := svc.catalog.ListEnrolledCourses(ctx, studentID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing enrolled courses")
	}
	entries, err := svc.repo.Query(ctx, QueryFilter{StudentID: studentID})
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying progress")
	}
	byTopic := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byTopic[e.TopicID] = e
	}

	stats := Stats{CourseBreakdown: make([]CourseStats, 0, len(courses))}
	var scoreSum int
	for _, c := range courses {
		topics, err := svc.catalog.ListTopics(ctx, c.ID)
		if err != nil {
			return Stats{}, errors.Wrap(err, "listing topics")
		}
		cs := CourseStats{CourseID: c.ID, CourseTitle: c.Title, TotalTopics: len(topics)}
		var courseSum int
		for _, t := range topics {
			e := byTopic[t.ID]
			switch e.State() {
			case StateMastered:
				cs.Mastered++
			case StateInProgress:
				cs.InProgress++
			default:
				cs.NotStarted++
				if e.Attempts > 0 {
					stats.WeakTopics++
				}
			}
			if e.Attempts > 0 {
				stats.CompletedTopics++
			}
			stats.TotalAttempts += e.Attempts
			stats.TotalSkips += e.Skips
			stats.TotalTimeSpentMinutes += e.TimeSpentMinutes
			courseSum += e.MasteryScore
		}
		if cs.TotalTopics > 0 {
			cs.AverageMastery = round2(float64(courseSum) / float64(cs.TotalTopics))
		}
		stats.TotalTopics += cs.TotalTopics
		stats.Mastered += cs.Mastered
		stats.InProgress += cs.InProgress
		stats.NotStarted += cs.NotStarted
		scoreSum += courseSum
		stats.CourseBreakdown = append(stats.CourseBreakdown, cs)
	}
	if stats.TotalTopics > 0 {
		stats.AverageMastery = round2(float64(scoreSum) / float64(stats.TotalTopics))
		stats.CompletionRate = int(math.Round(float64(stats.CompletedTopics) * 100 / float64(stats.TotalTopics)))
	}
	return stats, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CourseID != entries[j].CourseID {
			return entries[i].CourseID < entries[j].CourseID
		}
		return entries[i].TopicID < entries[j].TopicID
	})
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
