package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
)

// RedisBus publishes events on a Redis channel so that every API instance can deliver them to its own clients.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	logger  core.Logger
}

var _ notify.Notifier = (*RedisBus)(nil)

func NewRedisBus(conf *core.Config, logger core.Logger) (*RedisBus, error) {
	if conf.Redis.Addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        conf.Redis.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return NewRedisBusWithClient(rdb, conf.Redis.Channel, logger), nil
}

func NewRedisBusWithClient(rdb *goredis.Client, channel string, logger core.Logger) *RedisBus {
	if channel == "" {
		channel = "smartedu:events"
	}
	return &RedisBus{rdb: rdb, channel: channel, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, room string, evt notify.Event) error {
	evt.Room = room
	raw, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	return errors.Wrap(b.rdb.Publish(ctx, b.channel, raw).Err(), "publishing event")
}

// StartForwarder subscribes to the channel and hands every event to local until ctx is done.
func (b *RedisBus) StartForwarder(ctx context.Context, local notify.Notifier) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.Wrap(err, "redis subscribe")
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var evt notify.Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.logger.Warn("bad redis event payload", err)
					continue
				}
				if err := local.Publish(ctx, evt.Room, evt); err != nil {
					b.logger.Warn("forwarding redis event", err)
				}
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
