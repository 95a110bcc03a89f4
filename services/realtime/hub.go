// Package realtime delivers notify events to connected clients over server-sent events,
// and across instances through Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/notify"
)

const outboundBuffer = 16

// Client is one open event stream.
type Client struct {
	ID       uuid.UUID
	UserID   string
	Rooms    map[string]bool
	Outbound chan notify.Event
	done     chan struct{}
	once     sync.Once
}

// Hub routes events to the clients joined to a room. Slow clients lose events instead of blocking publishers.
type Hub struct {
	mu            sync.RWMutex
	logger        core.Logger
	subscriptions map[string]map[*Client]bool
	heartbeat     time.Duration
}

var _ notify.Notifier = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger:        logger,
		subscriptions: make(map[string]map[*Client]bool),
		heartbeat:     15 * time.Second,
	}
}

func (hub *Hub) NewClient(userID string) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Rooms:    make(map[string]bool),
		Outbound: make(chan notify.Event, outboundBuffer),
		done:     make(chan struct{}),
	}
}

// Join subscribes the client to room.
func (hub *Hub) Join(client *Client, room string) {
	room = strings.TrimSpace(room)
	if room == "" {
		return
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()

	client.Rooms[room] = true
	clients, ok := hub.subscriptions[room]
	if !ok {
		clients = make(map[*Client]bool)
		hub.subscriptions[room] = clients
	}
	clients[client] = true
}

// Leave unsubscribes the client from every room and closes it.
func (hub *Hub) Leave(client *Client) {
	hub.mu.Lock()
	for room := range client.Rooms {
		if clients, ok := hub.subscriptions[room]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(hub.subscriptions, room)
			}
		}
	}
	client.Rooms = make(map[string]bool)
	hub.mu.Unlock()

	client.once.Do(func() { close(client.done) })
}

// CloseAll ends every open stream.
func (hub *Hub) CloseAll() {
	hub.mu.RLock()
	clients := make(map[*Client]bool)
	for _, subs := range hub.subscriptions {
		for client := range subs {
			clients[client] = true
		}
	}
	hub.mu.RUnlock()

	for client := range clients {
		hub.Leave(client)
	}
}

// Members counts the clients joined to room.
func (hub *Hub) Members(room string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.subscriptions[room])
}

// Publish hands evt to every client of room. It never blocks on a client.
func (hub *Hub) Publish(_ context.Context, room string, evt notify.Event) error {
	evt.Room = room
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for client := range hub.subscriptions[room] {
		select {
		case client.Outbound <- evt:
		default:
			hub.logger.Warn(fmt.Sprintf("dropping %s event for client %s: outbound buffer full", evt.Type, client.ID))
		}
	}
	return nil
}

// Stream writes the client's events to w until the request ends or the client leaves.
func (hub *Hub) Stream(w http.ResponseWriter, r *http.Request, client *Client) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, "event: ready\ndata: {\"clientId\":%q}\n\n", client.ID.String())
	flusher.Flush()

	heartbeat := time.NewTicker(hub.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.done:
			return nil
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt := <-client.Outbound:
			data, err := json.Marshal(evt)
			if err != nil {
				hub.logger.Warn("marshalling event", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		}
	}
}
