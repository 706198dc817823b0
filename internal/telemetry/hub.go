package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/config"
)

// Event types.
const (
	EventReady     = "ready"
	EventHeartbeat = "heartbeat"
	EventChannel   = "channel"
	EventPrimary   = "primary"
	EventDownlink  = "downlink"
)

// clientQueue is the per-client backlog before events are dropped for that client.
const clientQueue = 64

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("telemetry: streaming unsupported")

// Event is one SSE message. Events with ID 0 are not buffered for replay.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// SnapshotFunc returns the current state sent in the ready event.
type SnapshotFunc func() map[string]interface{}

type client struct {
	events chan Event
}

// Hub fans channel events out to SSE subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]*client
	nextCID uint64

	nextID atomic.Int64
	buffer *EventBuffer

	snapshot SnapshotFunc
	log      logrus.FieldLogger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a hub and starts its heartbeat.
func NewHub(cfg config.EventsConfig, snapshot SnapshotFunc, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Hub{
		clients:  make(map[uint64]*client),
		buffer:   NewEventBuffer(cfg.BufferSize),
		snapshot: snapshot,
		log:      log.WithField("component", "telemetry"),
		done:     make(chan struct{}),
	}

	interval := time.Duration(cfg.HeartbeatSec) * time.Second
	if interval > 0 {
		h.wg.Add(1)
		go h.heartbeat(interval)
	}
	return h
}

// Subscribe streams events to w until ctx is done or the hub stops. A Last-Event-ID header
// replays buffered events newer than that id after the ready event.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastID int64
	if s := r.Header.Get("Last-Event-ID"); s != "" {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			lastID = id
		}
	}

	id, c := h.register()
	defer h.unregister(id)

	ready := Event{Type: EventReady, Data: map[string]interface{}{}}
	if h.snapshot != nil {
		ready.Data = h.snapshot()
	}
	if err := writeEvent(w, flusher, ready); err != nil {
		return err
	}
	if lastID > 0 {
		for _, ev := range h.buffer.EventsAfter(lastID) {
			if err := writeEvent(w, flusher, ev); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case ev := <-c.events:
			if err := writeEvent(w, flusher, ev); err != nil {
				return err
			}
		}
	}
}

// Publish assigns the next id to an event, buffers it and queues it for every subscriber.
// Slow subscribers lose the event rather than block the publisher.
func (h *Hub) Publish(eventType string, data map[string]interface{}) Event {
	ev := Event{ID: h.nextID.Add(1), Type: eventType, Data: data}
	h.buffer.Add(ev)
	h.broadcast(ev)
	return ev
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.clients {
		select {
		case c.events <- ev:
		default:
			h.log.WithFields(logrus.Fields{"client": id, "event": ev.Type}).Warn("Subscriber queue full, event dropped")
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop ends all subscriptions and the heartbeat. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
	h.wg.Wait()
}

func (h *Hub) register() (uint64, *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextCID++
	c := &client{events: make(chan Event, clientQueue)}
	h.clients[h.nextCID] = c
	return h.nextCID, c
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

func (h *Hub) heartbeat(interval time.Duration) {
	defer h.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.broadcast(Event{
				Type: EventHeartbeat,
				Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
			})
		case <-h.done:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, f http.Flusher, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if ev.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", ev.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// EventBuffer keeps the most recent events for replay.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// Add appends ev, evicting the oldest event when full.
func (b *EventBuffer) Add(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == b.capacity {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
	}
	b.events = append(b.events, ev)
}

// EventsAfter returns buffered events with an id greater than lastID.
func (b *EventBuffer) EventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.events {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
