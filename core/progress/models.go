package progress

import (
	"encoding/json"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
)

type (
	Outcome string
	State   string
)

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"

	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateMastered   State = "mastered"

	inProgressThreshold = 40
	masteredThreshold   = 85
	maxScore            = 100
)

// StateOf derives the mastery state from a score.
func StateOf(score int) State {
	switch {
	case score >= masteredThreshold:
		return StateMastered
	case score >= inProgressThreshold:
		return StateInProgress
	}
	return StateNotStarted
}

// Entry is the mastery of one student on one topic.
type Entry struct {
	StudentID        string     `json:"studentId"`
	TopicID          string     `json:"topicId"`
	CourseID         string     `json:"courseId"`
	MasteryScore     int        `json:"masteryScore"`
	Attempts         int        `json:"attempts"`
	Skips            int        `json:"skips"`
	TimeSpentMinutes int        `json:"timeSpentMinutes"`
	LastActivityAt   *time.Time `json:"lastActivityAt"`
	Version          int64      `json:"version"`
	UpdatedAt        time.Time  `json:"updatedAt"` // UTC
}

func (e Entry) State() State {
	return StateOf(e.MasteryScore)
}

// MarshalJSON adds the derived state.
func (e Entry) MarshalJSON() ([]byte, error) {
	type entry Entry
	return json.Marshal(struct {
		entry
		State State `json:"state"`
	}{entry(e), e.State()})
}

// Key identifies an entry.
type Key struct {
	StudentID string
	TopicID   string
}

// Activity is what a review adds on top of its outcome.
type Activity struct {
	TimeSpentMinutes int
	Score            *int // optional quiz score
}

// Update is a manual progress report by the student.
type Update struct {
	Score            *int `json:"score" validate:"omitempty,min=0,max=100"`
	TimeSpentMinutes *int `json:"timeSpentMinutes" validate:"omitempty,min=0,max=1440"`
}

func (u Update) Validate(validate *validator.Validate) error {
	if err := validate.Struct(u); err != nil {
		return err
	}
	if u.Score == nil && u.TimeSpentMinutes == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "score", Error: "one of score or timeSpentMinutes is required"})
	}
	return nil
}

// QueryFilter is applied by the repositories; empty fields match everything.
type QueryFilter struct {
	StudentID string
	CourseID  string
}

// Curve is the mastery gain/decay model.
type Curve struct {
	GainRate  float64
	MinGain   int
	DecayRate float64 // percent
}

func NewCurve(conf core.MasteryConfig) Curve {
	return Curve{GainRate: conf.GainRate, MinGain: conf.MinGain, DecayRate: conf.DecayRate}
}

// Gain returns the score after one completed review.
func (c Curve) Gain(score int) int {
	gain := int(math.Round(c.GainRate * float64(maxScore-score)))
	if gain < c.MinGain {
		gain = c.MinGain
	}
	return clamp(score + gain)
}

// Decay returns the score after one decay run.
func (c Curve) Decay(score int) int {
	if c.DecayRate <= 0 || score <= 0 {
		return score
	}
	loss := int(math.Ceil(float64(score) * c.DecayRate / 100))
	return clamp(score - loss)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

type (
	Stats struct {
		TotalTopics           int           `json:"totalTopics"`
		Mastered              int           `json:"mastered"`
		InProgress            int           `json:"inProgress"`
		NotStarted            int           `json:"notStarted"`
		CompletedTopics       int           `json:"completedTopics"` // at least one completed review
		WeakTopics            int           `json:"weakTopics"`      // attempted but below in_progress
		CompletionRate        int           `json:"completionRate"`  // percent of topics completed
		AverageMastery        float64       `json:"averageMastery"`
		TotalAttempts         int           `json:"totalAttempts"`
		TotalSkips            int           `json:"totalSkips"`
		TotalTimeSpentMinutes int           `json:"totalTimeSpentMinutes"`
		CourseBreakdown       []CourseStats `json:"courseBreakdown"`
	}

	CourseStats struct {
		CourseID       string  `json:"courseId"`
		CourseTitle    string  `json:"courseTitle"`
		TotalTopics    int     `json:"totalTopics"`
		Mastered       int     `json:"mastered"`
		InProgress     int     `json:"inProgress"`
		NotStarted     int     `json:"notStarted"`
		AverageMastery float64 `json:"averageMastery"`
	}
)
