package revision

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
)

type (
	Status     string
	AlertLevel string
	Type       string
	Priority   string

	// DueFilter selects records by where now falls relative to their due date.
	DueFilter string
)

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"

	AlertNone    AlertLevel = "none"
	AlertDueSoon AlertLevel = "due_soon"
	AlertOverdue AlertLevel = "overdue"

	TypeQuiz      Type = "quiz"
	TypeReview    Type = "review"
	TypePractice  Type = "practice"
	TypeFlashcard Type = "flashcard"
	TypeSummary   Type = "summary"

	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"

	DueAll      DueFilter = ""
	DueNow      DueFilter = "due"
	DueOverdue  DueFilter = "overdue"
	DueUpcoming DueFilter = "upcoming"
)

var (
	ErrDuplicate = errors.New("a revision already exists for this student and topic")

	Types      = []Type{TypeQuiz, TypeReview, TypePractice, TypeFlashcard, TypeSummary}
	Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
)

// Rank orders alert levels: none < due_soon < overdue.
func (lvl AlertLevel) Rank() int {
	switch lvl {
	case AlertDueSoon:
		return 1
	case AlertOverdue:
		return 2
	}
	return 0
}

// Record is the revision schedule of one student on one topic.
type Record struct {
	ID             string           `json:"id"`
	StudentID      string           `json:"studentId"`
	TopicID        string           `json:"topicId"`
	CourseID       string           `json:"courseId"`
	Status         Status           `json:"status"`
	LastOutcome    progress.Outcome `json:"lastOutcome,omitempty"`
	IntervalDays   int              `json:"intervalDays"`
	EaseFactor     float64          `json:"easeFactor"`
	LastReviewedAt *time.Time       `json:"lastReviewedAt"`
	NextDueAt      time.Time        `json:"nextDueAt"`
	Streak         int              `json:"streak"`
	Completions    int              `json:"completions"`
	Skips          int              `json:"skips"`
	Type           Type             `json:"type"`
	Priority       Priority         `json:"priority"`
	Notes          string           `json:"notes"`
	CreatedBy      string           `json:"createdBy"`
	CreatedByRole  string           `json:"createdByRole"`
	LastAlertLevel AlertLevel       `json:"lastAlertLevel"`
	LastAlertedAt  *time.Time       `json:"lastAlertedAt"`
	Version        int64            `json:"version"`
	CreatedAt      time.Time        `json:"createdAt"` // UTC
	UpdatedAt      time.Time        `json:"updatedAt"` // UTC
}

// NewRevision is the payload to schedule a topic for one student or a cohort.
type NewRevision struct {
	StudentID  string     `json:"studentId" validate:"required_without=StudentIDs"`
	StudentIDs []string   `json:"studentIds" validate:"omitempty,max=500,dive,notblank"`
	TopicID    string     `json:"topicId" validate:"required,notblank"`
	CourseID   string     `json:"courseId" validate:"required,notblank"`
	FirstDueAt *time.Time `json:"firstDueAt"`
	Type       Type       `json:"type" validate:"omitempty,revision_type"`
	Priority   Priority   `json:"priority" validate:"omitempty,revision_priority"`
	Notes      string     `json:"notes" validate:"max=2000"`
}

func (nr *NewRevision) Validate(validate *validator.Validate) error {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.TopicID = core.CleanString(nr.TopicID)
	nr.CourseID = core.CleanString(nr.CourseID)
	nr.Notes = core.CleanString(nr.Notes)
	for i, id := range nr.StudentIDs {
		nr.StudentIDs[i] = core.CleanString(id)
	}
	return validate.Struct(nr)
}

// Students returns the distinct target students, in request order.
func (nr NewRevision) Students() []string {
	ids := make([]string, 0, len(nr.StudentIDs)+1)
	seen := make(map[string]bool, len(nr.StudentIDs)+1)
	if nr.StudentID != "" {
		ids = append(ids, nr.StudentID)
		seen[nr.StudentID] = true
	}
	for _, id := range nr.StudentIDs {
		if id != "" && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	return ids
}

// Review carries the optional activity reported with a completion.
type Review struct {
	TimeSpentMinutes int  `json:"timeSpentMinutes" validate:"min=0,max=1440"`
	Score            *int `json:"score" validate:"omitempty,min=0,max=100"`
}

// QueryFilter is applied by the repositories; empty fields match everything.
type QueryFilter struct {
	StudentID string
	CourseID  string
	DueBefore *time.Time // nextDueAt <= DueBefore
}

// ListFilter is the caller-facing filter of the list endpoints.
type ListFilter struct {
	Status   DueFilter `query:"status" validate:"omitempty,oneof=due overdue upcoming"`
	CourseID string    `query:"courseId"`
}

type Stats struct {
	Total          int     `json:"total"`
	Due            int     `json:"due"`
	Overdue        int     `json:"overdue"`
	Upcoming       int     `json:"upcoming"`
	Completions    int     `json:"completions"`
	Skips          int     `json:"skips"`
	CompletionRate int     `json:"completionRate"` // percent of reviews completed
	AverageEase    float64 `json:"averageEase"`
	BestStreak     int     `json:"bestStreak"`
}
