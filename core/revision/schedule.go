package revision

import (
	"math"
	"time"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
)

const day = 24 * time.Hour

// Params are the spacing constants of the scheduler.
type Params struct {
	DefaultEase     float64
	EaseFloor       float64
	EaseCeiling     float64
	EaseBonus       float64
	EasePenalty     float64
	InitialInterval int
	SkipInterval    int
	MaxIntervalDays int
	DefaultFirstDue time.Duration
}

func NewParams(conf core.SchedulerConfig) Params {
	p := Params{
		DefaultEase:     conf.DefaultEase,
		EaseFloor:       conf.EaseFloor,
		EaseCeiling:     conf.EaseCeiling,
		EaseBonus:       conf.EaseBonus,
		EasePenalty:     conf.EasePenalty,
		InitialInterval: conf.InitialInterval,
		SkipInterval:    conf.SkipInterval,
		MaxIntervalDays: conf.MaxIntervalDays,
		DefaultFirstDue: conf.DefaultFirstDue,
	}
	if p.InitialInterval < 1 {
		p.InitialInterval = 1
	}
	if p.SkipInterval < 1 {
		p.SkipInterval = 1
	}
	if p.MaxIntervalDays < p.InitialInterval {
		p.MaxIntervalDays = p.InitialInterval
	}
	if p.EaseCeiling < p.EaseFloor {
		p.EaseCeiling = p.EaseFloor
	}
	return p
}

// Windows position a due date relative to now.
type Windows struct {
	Lookahead time.Duration // due_soon starts this long before nextDueAt
	Grace     time.Duration // overdue starts this long after nextDueAt
	Upcoming  time.Duration // how far ahead the "upcoming" filter looks
}

func NewWindows(conf core.DeadlineConfig) Windows {
	return Windows{Lookahead: conf.Lookahead, Grace: conf.Grace, Upcoming: 7 * day}
}

// Level is the alert level the record has reached at now.
func (w Windows) Level(rec Record, now time.Time) AlertLevel {
	switch {
	case !now.Before(rec.NextDueAt.Add(w.Grace)):
		return AlertOverdue
	case !now.Before(rec.NextDueAt.Add(-w.Lookahead)):
		return AlertDueSoon
	}
	return AlertNone
}

func (w Windows) IsDue(rec Record, now time.Time) bool {
	return !now.Before(rec.NextDueAt)
}

func (w Windows) IsOverdue(rec Record, now time.Time) bool {
	return !now.Before(rec.NextDueAt.Add(w.Grace))
}

func (w Windows) IsUpcoming(rec Record, now time.Time) bool {
	return rec.NextDueAt.After(now) && !rec.NextDueAt.After(now.Add(w.Upcoming))
}

// Match reports whether rec passes the due filter at now.
func (w Windows) Match(f DueFilter, rec Record, now time.Time) bool {
	switch f {
	case DueNow:
		return w.IsDue(rec, now)
	case DueOverdue:
		return w.IsOverdue(rec, now)
	case DueUpcoming:
		return w.IsUpcoming(rec, now)
	}
	return true
}

// DaysUntilDue rounds up to whole days; it is negative once the record is past due.
func DaysUntilDue(rec Record, now time.Time) int {
	return int(math.Ceil(rec.NextDueAt.Sub(now).Hours() / 24))
}

// Schedule fills in the initial schedule of a new record.
func (p Params) Schedule(rec Record, firstDueAt *time.Time, now time.Time) Record {
	rec.Status = StatusScheduled
	rec.IntervalDays = p.InitialInterval
	rec.EaseFactor = p.DefaultEase
	if firstDueAt != nil && !firstDueAt.IsZero() {
		rec.NextDueAt = firstDueAt.UTC()
	} else {
		rec.NextDueAt = now.Add(p.DefaultFirstDue)
	}
	rec.LastAlertLevel = AlertNone
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec
}

// Complete reschedules rec after a successful review.
func (p Params) Complete(rec Record, now time.Time) Record {
	prev := rec.IntervalDays
	if prev < 1 {
		prev = 1
	}
	rec.Streak++
	rec.Completions++
	rec.EaseFactor = round2(math.Min(rec.EaseFactor+p.EaseBonus, p.EaseCeiling))
	if rec.EaseFactor < p.EaseFloor {
		rec.EaseFactor = p.EaseFloor
	}

	interval := int(math.Ceil(round6(float64(prev) * rec.EaseFactor)))
	if interval < prev+1 {
		interval = prev + 1
	}
	if interval > p.MaxIntervalDays {
		interval = p.MaxIntervalDays
	}
	if interval < prev {
		interval = prev
	}
	rec.IntervalDays = interval
	return p.reviewed(rec, progress.OutcomeCompleted, now)
}

// Skip reschedules rec after the student skipped it.
func (p Params) Skip(rec Record, now time.Time) Record {
	rec.Streak = 0
	rec.Skips++
	rec.EaseFactor = round2(math.Max(rec.EaseFactor-p.EasePenalty, p.EaseFloor))
	rec.IntervalDays = p.SkipInterval
	return p.reviewed(rec, progress.OutcomeSkipped, now)
}

func (p Params) reviewed(rec Record, outcome progress.Outcome, now time.Time) Record {
	reviewedAt := now
	rec.LastReviewedAt = &reviewedAt
	rec.NextDueAt = now.Add(time.Duration(rec.IntervalDays) * day)
	rec.Status = StatusScheduled
	rec.LastOutcome = outcome
	rec.LastAlertLevel = AlertNone
	rec.LastAlertedAt = nil
	rec.UpdatedAt = now
	return rec
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
