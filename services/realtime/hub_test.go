package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
	testutil "github.com/projectsmartedu/SmartEducation-sub001/tests"
)

func TestHub_Publish(t *testing.T) {
	hub := NewHub(testutil.NewLogger())
	ctx := context.Background()

	alice := hub.NewClient("s1")
	bob := hub.NewClient("s2")
	teacher := hub.NewClient("t1")
	hub.Join(alice, notify.StudentRoom("s1"))
	hub.Join(bob, notify.StudentRoom("s2"))
	hub.Join(teacher, notify.StudentRoom("t1"))
	hub.Join(teacher, notify.RoleRoom("teacher"))
	hub.Join(teacher, "  ")

	assert.Equal(t, 1, hub.Members("user_s1"))
	assert.Equal(t, 1, hub.Members("role_teacher"))
	assert.Len(t, teacher.Rooms, 2)

	require.NoError(t, hub.Publish(ctx, notify.StudentRoom("s1"), notify.Event{Type: notify.EventDeadlineAlert}))
	require.NoError(t, hub.Publish(ctx, notify.RoleRoom("teacher"), notify.Event{Type: notify.EventDeadlineAlert}))

	select {
	case evt := <-alice.Outbound:
		assert.Equal(t, "user_s1", evt.Room)
	default:
		t.Fatal("alice got no event")
	}
	assert.Len(t, bob.Outbound, 0)
	assert.Len(t, teacher.Outbound, 1)

	hub.Leave(teacher)
	assert.Equal(t, 0, hub.Members("role_teacher"))
	assert.Empty(t, teacher.Rooms)
	hub.Leave(teacher) // closing twice is harmless
}

func TestHub_Publish_fullBuffer(t *testing.T) {
	hub := NewHub(testutil.NewLogger())
	client := hub.NewClient("s1")
	hub.Join(client, "user_s1")

	for i := 0; i < outboundBuffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), "user_s1", notify.Event{Type: "x"}))
	}
	assert.Len(t, client.Outbound, outboundBuffer)
}

func TestHub_Stream(t *testing.T) {
	hub := NewHub(testutil.NewLogger())
	client := hub.NewClient("s1")
	hub.Join(client, "user_s1")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Stream(w, r, client)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(prefix string) string {
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	assert.Equal(t, "event: ready", waitFor("event:"))
	require.NoError(t, hub.Publish(context.Background(), "user_s1", notify.Event{
		Type:    notify.EventDeadlineAlert,
		Payload: map[string]string{"revisionId": "r1"},
	}))
	assert.Equal(t, "event: deadlineAlert", waitFor("event:"))
	assert.Contains(t, waitFor("data:"), `"revisionId":"r1"`)

	hub.Leave(client)
}

// plainWriter hides the recorder's Flush method.
type plainWriter struct {
	http.ResponseWriter
}

func TestHub_Stream_noFlusher(t *testing.T) {
	hub := NewHub(testutil.NewLogger())
	client := hub.NewClient("s1")
	rec := httptest.NewRecorder()

	err := hub.Stream(plainWriter{rec}, httptest.NewRequest(http.MethodGet, "/", nil), client)
	assert.EqualError(t, err, "streaming unsupported")
	assert.Empty(t, rec.Body.String())
}
