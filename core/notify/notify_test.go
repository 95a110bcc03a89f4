package notify

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeNotifier struct {
	rooms []string
	err   error
}

func (f *fakeNotifier) Publish(_ context.Context, room string, _ Event) error {
	f.rooms = append(f.rooms, room)
	return f.err
}

func TestRooms(t *testing.T) {
	assert.Equal(t, "user_s1", StudentRoom("s1"))
	assert.Equal(t, "role_teacher", RoleRoom("teacher"))
}

func TestFanout(t *testing.T) {
	failing := &fakeNotifier{err: errors.New("down")}
	ok := &fakeNotifier{}

	err := Fanout{failing, nil, ok}.Publish(context.Background(), "user_s1", Event{Type: EventDeadlineAlert})
	assert.EqualError(t, err, "down")
	assert.Equal(t, []string{"user_s1"}, failing.rooms)
	assert.Equal(t, []string{"user_s1"}, ok.rooms)
}

func TestLogNotifier(t *testing.T) {
	assert.Error(t, LogNotifier{}.Publish(context.Background(), "user_s1", Event{}))
}
