package revision

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/course"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
)

var NowFunc = func() time.Time { return time.Now().UTC() } // mockable

type (
	Repository interface {
		// Create inserts all records or none; it returns ErrDuplicate if any (student, topic) pair already exists.
		Create(ctx context.Context, recs ...Record) error
		// Get returns a *core.NotFoundError when there is no such record.
		Get(ctx context.Context, id string) (Record, error)
		// Update stores rec if the stored version still equals rec.Version, and returns it with the next version.
		// It returns core.ErrVersionMismatch when a concurrent writer won.
		Update(ctx context.Context, rec Record) (Record, error)
		Delete(ctx context.Context, id string) error
		// Query returns the matching records ordered by nextDueAt, then id.
		Query(ctx context.Context, filter QueryFilter) ([]Record, error)
	}

	// ProgressRecorder receives the outcome of each review, inside the same unit of work.
	ProgressRecorder interface {
		RecordOutcome(ctx context.Context, key progress.Key, courseID string, outcome progress.Outcome, act progress.Activity) (progress.Entry, error)
	}

	Service struct {
		repo       Repository
		recorder   ProgressRecorder
		catalog    course.Catalog
		tx         core.TxRunner
		params     Params
		windows    Windows
		maxRetries int
		validate   *validator.Validate
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	recorder ProgressRecorder,
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
		recorder:   recorder,
		catalog:    catalog,
		tx:         tx,
		params:     NewParams(conf.Scheduler),
		windows:    NewWindows(conf.Deadline),
		maxRetries: retries,
		validate:   validate,
	}
}

func (svc *Service) Windows() Windows {
	return svc.windows
}

// Create schedules the topic for every target student. A cohort is created all-or-nothing.
func (svc *Service) Create(ctx context.Context, caller user.Identity, data NewRevision) ([]Record, error) {
	if d := user.Authorize(caller, user.StaffRoles...); !d.Allowed {
		return nil, core.NewForbiddenError(d.Reason)
	}
	if err := data.Validate(svc.validate); err != nil {
		return nil, err
	}
	students := data.Students()
	if len(students) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "studentIds", Error: "at least one student is required"})
	}

	topic, err := svc.catalog.GetTopic(ctx, data.TopicID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "topicId", Error: "unknown topic"})
		}
		return nil, errors.Wrap(err, "getting topic")
	}
	if topic.CourseID != data.CourseID {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "topicId", Error: "topic does not belong to this course"})
	}

	typ, prio := data.Type, data.Priority
	if typ == "" {
		typ = TypeReview
	}
	if prio == "" {
		prio = PriorityMedium
	}

	now := NowFunc()
	recs := make([]Record, 0, len(students))
	for _, sid := range students {
		rec := Record{
			ID:            uuid.New().String(),
			StudentID:     sid,
			TopicID:       topic.ID,
			CourseID:      topic.CourseID,
			Type:          typ,
			Priority:      prio,
			Notes:         data.Notes,
			CreatedBy:     caller.ID,
			CreatedByRole: caller.OwnerRole(),
			Version:       1,
		}
		recs = append(recs, svc.params.Schedule(rec, data.FirstDueAt, now))
	}

	if err = svc.repo.Create(ctx, recs...); err != nil {
		if errors.Cause(err) == ErrDuplicate {
			return nil, core.NewConflictError(ErrDuplicate.Error())
		}
		return nil, errors.Wrap(err, "creating revisions")
	}
	return recs, nil
}

// Complete records a successful review by the owning student and reschedules the record.
func (svc *Service) Complete(ctx context.Context, caller user.Identity, id string, review Review) (Record, error) {
	if err := svc.validate.Struct(review); err != nil {
		return Record{}, err
	}
	return svc.review(ctx, caller, id, progress.OutcomeCompleted, progress.Activity{
		TimeSpentMinutes: review.TimeSpentMinutes,
		Score:            review.Score,
	})
}

// Skip records a skipped review by the owning student and reschedules the record.
func (svc *Service) Skip(ctx context.Context, caller user.Identity, id string) (Record, error) {
	return svc.review(ctx, caller, id, progress.OutcomeSkipped, progress.Activity{})
}

func (svc *Service) review(ctx context.Context, caller user.Identity, id string, outcome progress.Outcome, act progress.Activity) (Record, error) {
	var updated Record
	for attempt := 0; attempt < svc.maxRetries; attempt++ {
		err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
			rec, err := svc.repo.Get(ctx, id)
			if err != nil {
				return err
			}
			if d := user.AuthorizeOwner(caller, rec.StudentID); !d.Allowed {
				return core.NewForbiddenError(d.Reason)
			}

			now := NowFunc()
			if outcome == progress.OutcomeCompleted {
				rec = svc.params.Complete(rec, now)
			} else {
				rec = svc.params.Skip(rec, now)
			}
			if updated, err = svc.repo.Update(ctx, rec); err != nil {
				return err
			}

			key := progress.Key{StudentID: rec.StudentID, TopicID: rec.TopicID}
			if _, err = svc.recorder.RecordOutcome(ctx, key, rec.CourseID, outcome, act); err != nil {
				return errors.Wrap(err, "recording progress")
			}
			return nil
		})
		if errors.Cause(err) == core.ErrVersionMismatch {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return updated, nil
	}
	return Record{}, core.NewConflictError("revision was modified concurrently, please retry")
}

// Delete removes a record; only staff may.
func (svc *Service) Delete(ctx context.Context, caller user.Identity, id string) error {
	if d := user.Authorize(caller, user.StaffRoles...); !d.Allowed {
		return core.NewForbiddenError(d.Reason)
	}
	if _, err := svc.repo.Get(ctx, id); err != nil {
		return err
	}
	return svc.repo.Delete(ctx, id)
}

// Get returns a record to its student or to staff.
func (svc *Service) Get(ctx context.Context, caller user.Identity, id string) (Record, error) {
	rec, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if d := user.AuthorizeOwner(caller, rec.StudentID, user.StaffRoles...); !d.Allowed {
		return Record{}, core.NewForbiddenError(d.Reason)
	}
	return rec, nil
}

// List returns the student's records matching filter, ordered by nextDueAt.
func (svc *Service) List(ctx context.Context, studentID string, filter ListFilter) ([]Record, error) {
	if err := svc.validate.Struct(filter); err != nil {
		return nil, err
	}
	q := QueryFilter{StudentID: studentID, CourseID: core.CleanString(filter.CourseID)}
	now := NowFunc()
	if filter.Status == DueNow || filter.Status == DueOverdue {
		before := now
		if filter.Status == DueOverdue {
			before = now.Add(-svc.windows.Grace)
		}
		q.DueBefore = &before
	}

	recs, err := svc.repo.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying revisions")
	}
	out := recs[:0]
	for _, rec := range recs {
		if svc.windows.Match(filter.Status, rec, now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListForStudent is the staff view of a student's records.
func (svc *Service) ListForStudent(ctx context.Context, caller user.Identity, studentID string) ([]Record, error) {
	if d := user.Authorize(caller, user.StaffRoles...); !d.Allowed {
		return nil, core.NewForbiddenError(d.Reason)
	}
	return svc.List(ctx, studentID, ListFilter{})
}

// Stats summarizes the student's schedule.
func (svc *Service) Stats(ctx context.Context, studentID string) (Stats, error) {
	recs, err := svc.repo.Query(ctx, QueryFilter{StudentID: studentID})
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying revisions")
	}

	now := NowFunc()
	stats := Stats{Total: len(recs)}
	var easeSum float64
	for _, rec := range recs {
		if svc.windows.IsDue(rec, now) {
			stats.Due++
		}
		if svc.windows.IsOverdue(rec, now) {
			stats.Overdue++
		}
		if svc.windows.IsUpcoming(rec, now) {
			stats.Upcoming++
		}
		stats.Completions += rec.Completions
		stats.Skips += rec.Skips
		easeSum += rec.EaseFactor
		if rec.Streak > stats.BestStreak {
			stats.BestStreak = rec.Streak
		}
	}
	if reviews := stats.Completions + stats.Skips; reviews > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.Completions) * 100 / float64(reviews)))
	}
	if stats.Total > 0 {
		stats.AverageEase = round2(easeSum / float64(stats.Total))
	}
	return stats, nil
}

// ForStudent returns every record of the student keyed by topic id.
func (svc *Service) ForStudent(ctx context.Context, studentID, courseID string) (map[string]Record, error) {
	recs, err := svc.repo.Query(ctx, QueryFilter{StudentID: studentID, CourseID: courseID})
	if err != nil {
		return nil, errors.Wrap(err, "querying revisions")
	}
	byTopic := make(map[string]Record, len(recs))
	for _, rec := range recs {
		byTopic[rec.TopicID] = rec
	}
	return byTopic, nil
}

// OverdueKeys lists the (student, topic) pairs whose revision is overdue past the grace window.
func (svc *Service) OverdueKeys(ctx context.Context) ([]progress.Key, error) {
	before := NowFunc().Add(-svc.windows.Grace)
	recs, err := svc.repo.Query(ctx, QueryFilter{DueBefore: &before})
	if err != nil {
		return nil, errors.Wrap(err, "querying overdue revisions")
	}
	keys := make([]progress.Key, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, progress.Key{StudentID: rec.StudentID, TopicID: rec.TopicID})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StudentID != keys[j].StudentID {
			return keys[i].StudentID < keys[j].StudentID
		}
		return keys[i].TopicID < keys[j].TopicID
	})
	return keys, nil
}
