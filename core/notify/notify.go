// Package notify defines the real-time event boundary. Transports implement Notifier.
package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
)

const (
	EventDeadlineAlert = "deadlineAlert"

	studentRoomPrefix = "user_"
	roleRoomPrefix    = "role_"
)

// Event is a message for every client joined to Room. It is never stored.
type Event struct {
	Type    string      `json:"type"`
	Room    string      `json:"room"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sentAt"`
}

type Notifier interface {
	Publish(ctx context.Context, room string, evt Event) error
}

// StudentRoom is the private room of a user.
func StudentRoom(userID string) string {
	return studentRoomPrefix + userID
}

// RoleRoom is the room shared by every connected user of a role family ("teacher", "admin").
func RoleRoom(role string) string {
	return roleRoomPrefix + role
}

// Fanout publishes to every notifier; it returns the first error after trying them all.
type Fanout []Notifier

func (f Fanout) Publish(ctx context.Context, room string, evt Event) error {
	var first error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, room, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogNotifier writes events to the logger. Used by the admin CLI when no transport is configured.
type LogNotifier struct {
	Logger core.Logger
}

func (n LogNotifier) Publish(_ context.Context, room string, evt Event) error {
	if n.Logger == nil {
		return errors.New("log notifier has no logger")
	}
	n.Logger.Info("event "+evt.Type+" -> "+room, evt.Payload)
	return nil
}
