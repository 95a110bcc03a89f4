// Package deadline watches revision due dates and alerts the student and the owning staff room
// once per alert level.
package deadline

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
	"github.com/projectsmartedu/SmartEducation-sub001/core/revision"
	"github.com/projectsmartedu/SmartEducation-sub001/core/user"
)

var NowFunc = func() time.Time { return time.Now().UTC() } // mockable

// AlertPayload is the payload of a deadlineAlert event.
type AlertPayload struct {
	RevisionID   string              `json:"revisionId"`
	StudentID    string              `json:"studentId"`
	TopicID      string              `json:"topicId"`
	CourseID     string              `json:"courseId"`
	Level        revision.AlertLevel `json:"level"`
	Priority     revision.Priority   `json:"priority"`
	NextDueAt    time.Time           `json:"nextDueAt"`
	DaysUntilDue int                 `json:"daysUntilDue"`
}

// Result counts what one scan did.
type Result struct {
	Scanned          int
	Alerts           int
	Raced            int // marker lost to a concurrent write; retried next scan
	Failed           int
	DispatchFailures int
}

type Scanner struct {
	repo     revision.Repository
	notifier notify.Notifier
	windows  revision.Windows
	logger   core.Logger
}

func NewScanner(conf *core.Config, repo revision.Repository, notifier notify.Notifier, logger core.Logger) *Scanner {
	return &Scanner{
		repo:     repo,
		notifier: notifier,
		windows:  revision.NewWindows(conf.Deadline),
		logger:   logger,
	}
}

// Scan alerts every record that reached a higher alert level since its last alert.
// The marker is committed before dispatch, so a record is alerted at most once per level.
// ctx cancellation stops the scan between records.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	var res Result
	now := NowFunc()
	horizon := now.Add(s.windows.Lookahead)
	recs, err := s.repo.Query(ctx, revision.QueryFilter{DueBefore: &horizon})
	if err != nil {
		return res, errors.Wrap(err, "querying revisions due soon")
	}

	for _, rec := range recs {
		if err = ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		lvl := s.windows.Level(rec, now)
		if lvl.Rank() <= rec.LastAlertLevel.Rank() {
			continue
		}

		marked := rec
		alertedAt := now
		marked.LastAlertLevel = lvl
		marked.LastAlertedAt = &alertedAt
		if _, err = s.repo.Update(ctx, marked); err != nil {
			if errors.Cause(err) == core.ErrVersionMismatch {
				res.Raced++
				continue
			}
			res.Failed++
			s.logger.Error(fmt.Sprintf("marking revision %s as %s", rec.ID, lvl), err)
			continue
		}

		res.Alerts++
		res.DispatchFailures += s.dispatch(ctx, marked, now)
	}
	return res, nil
}

func (s *Scanner) dispatch(ctx context.Context, rec revision.Record, now time.Time) int {
	payload := AlertPayload{
		RevisionID:   rec.ID,
		StudentID:    rec.StudentID,
		TopicID:      rec.TopicID,
		CourseID:     rec.CourseID,
		Level:        rec.LastAlertLevel,
		Priority:     rec.Priority,
		NextDueAt:    rec.NextDueAt,
		DaysUntilDue: revision.DaysUntilDue(rec, now),
	}

	var failures int
	for _, room := range alertRooms(rec) {
		evt := notify.Event{Type: notify.EventDeadlineAlert, Room: room, Payload: payload, SentAt: now}
		if err := s.notifier.Publish(ctx, room, evt); err != nil {
			failures++
			s.logger.Warn(fmt.Sprintf("dispatching deadline alert for revision %s to %s", rec.ID, room), err)
		}
	}
	return failures
}

// alertRooms are the student's room and the room of the role that owns the record.
func alertRooms(rec revision.Record) []string {
	owner := rec.CreatedByRole
	if owner != user.RoleName(user.RoleAdmin) {
		owner = user.RoleName(user.RoleTeacher)
	}
	return []string{notify.StudentRoom(rec.StudentID), notify.RoleRoom(owner)}
}
