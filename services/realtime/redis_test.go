package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
	testutil "github.com/projectsmartedu/SmartEducation-sub001/tests"
)

func newTestBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	srv := miniredis.RunT(t)
	bus := NewRedisBusWithClient(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}), "", testutil.NewLogger())
	t.Cleanup(func() { _ = bus.Close() })
	return bus, srv
}

func TestNewRedisBus(t *testing.T) {
	srv := miniredis.RunT(t)
	conf := core.NewTestConfig()

	_, err := NewRedisBus(conf, testutil.NewLogger())
	assert.EqualError(t, err, "missing redis address")

	conf.Redis.Addr = srv.Addr()
	bus, err := NewRedisBus(conf, testutil.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, conf.Redis.Channel, bus.channel)
	require.NoError(t, bus.Close())
}

func TestRedisBus_forward(t *testing.T) {
	bus, srv := newTestBus(t)
	hub := NewHub(testutil.NewLogger())
	alice := hub.NewClient("s1")
	bob := hub.NewClient("s2")
	hub.Join(alice, notify.StudentRoom("s1"))
	hub.Join(bob, notify.StudentRoom("s2"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, bus.StartForwarder(ctx, hub))
	assert.Equal(t, map[string]int{"smartedu:events": 1}, srv.PubSubNumSub("smartedu:events"))

	require.NoError(t, bus.Publish(ctx, notify.StudentRoom("s1"), notify.Event{
		Type:    notify.EventDeadlineAlert,
		Payload: map[string]string{"revisionId": "r1"},
	}))

	select {
	case evt := <-alice.Outbound:
		assert.Equal(t, notify.EventDeadlineAlert, evt.Type)
		assert.Equal(t, "user_s1", evt.Room)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not forwarded")
	}
	assert.Len(t, bob.Outbound, 0)

	// bad payloads are skipped, the forwarder keeps running
	srv.Publish("smartedu:events", "{not json")
	require.NoError(t, bus.Publish(ctx, notify.StudentRoom("s2"), notify.Event{Type: notify.EventDeadlineAlert}))
	select {
	case evt := <-bob.Outbound:
		assert.Equal(t, "user_s2", evt.Room)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder stopped after a bad payload")
	}
}

func TestRedisBus_Publish_closed(t *testing.T) {
	bus, _ := newTestBus(t)
	require.NoError(t, bus.rdb.Close())

	err := bus.Publish(context.Background(), "user_s1", notify.Event{Type: notify.EventDeadlineAlert})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "publishing event")
}
