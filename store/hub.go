package store

import "sync"

// EventKind discriminates hub events pushed to presentation subscribers.
type EventKind string

const (
	EventMessageAppended   EventKind = "message"
	EventVisibilityChanged EventKind = "visibility"
	EventModerationOutcome EventKind = "moderation"
	EventStateChanged      EventKind = "state"
)

// Event is one presentation-layer notification. Message is set for
// message-appended and moderation-outcome events when a concrete message is
// involved; State for state changes.
type Event struct {
	Kind    EventKind `json:"kind"`
	Channel string    `json:"channel"`
	Message *Message  `json:"message,omitempty"`
	State   ConnState `json:"state,omitempty"`
}

// Hub fans events out to SSE subscribers. Sends never block: a subscriber
// that cannot keep up loses events rather than stalling ingestion.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]subscription
}

type subscription struct {
	channel string // empty = all channels
	ch      chan Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscription)}
}

// Subscribe registers a listener for one channel (or all when channel is
// empty). The returned cancel func must be called to release the slot.
func (h *Hub) Subscribe(channel string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Event, 64)
	h.subs[id] = subscription{channel: canonical(channel), ch: ch}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every matching subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.channel != "" && sub.channel != canonical(ev.Channel) {
			continue
		}
		select {
		case sub.ch <- ev:
		default: // drop for slow consumers
		}
	}
}
