// Package events broadcasts invocation lifecycle events to streaming clients.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Lifecycle event types.
const (
	TypeInvocationStarted  = "invocation.started"
	TypeInvocationFinished = "invocation.finished"
)

// DefaultCapacity is the replay buffer size used when none is given.
const DefaultCapacity = 100

// subscriberBuffer is how many events a subscriber may lag before drops.
const subscriberBuffer = 64

// Event is one published lifecycle event. Data is a JSON document.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Invocation is the payload of invocation lifecycle events. Outcome fields
// are only set on TypeInvocationFinished.
type Invocation struct {
	ID         string `json:"id,omitempty"`
	Namespace  string `json:"namespace"`
	Function   string `json:"function"`
	Status     string `json:"status,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Hub is an in-memory fan-out with a replay ring for clients that reconnect.
// Slow subscribers miss events rather than block publishers.
type Hub struct {
	mu     sync.Mutex
	nextID int64
	ring   []Event
	start  int
	size   int

	subs      map[int]chan Event
	nextSubID int
}

// NewHub returns a hub that replays up to capacity recent events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish assigns the next event id and delivers the event to every
// subscriber. A payload that cannot be encoded is sent as {}.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ev := Event{
		ID:   h.nextID,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.push(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Since returns buffered events with an id greater than lastID, oldest first.
func (h *Hub) Since(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := range h.size {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// push appends to the ring, overwriting the oldest entry when full.
func (h *Hub) push(ev Event) {
	if h.size < len(h.ring) {
		h.ring[(h.start+h.size)%len(h.ring)] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % len(h.ring)
}
