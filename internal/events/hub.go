// Package events fans derivation events out to observers. Subscribers
// get a bounded replay of recent events plus a live feed.
package events

import (
	"sync"
	"time"
)

// Event is one observed journal write: an applied action, a rejected
// submission or a recorded settlement fact.
type Event struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	Channel   string    `json:"channel,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	KindActionApplied   = "action_applied"
	KindActionRejected  = "action_rejected"
	KindPaymentRecorded = "payment_recorded"
)

type Hub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []Event
	subs    map[int]chan Event
	nextSub int
}

func NewHub(limit int) *Hub {
	if limit < 1 {
		limit = 1
	}
	return &Hub{
		limit: limit,
		subs:  make(map[int]chan Event),
	}
}

// Publish assigns the next sequence number and delivers to every live
// subscriber. Slow subscribers are dropped rather than blocked on.
func (h *Hub) Publish(kind, channel string, payload any) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event := Event{
		Seq:       h.nextSeq,
		Kind:      kind,
		Channel:   channel,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	h.history = append(h.history, event)
	if len(h.history) > h.limit {
		h.history = append([]Event(nil), h.history[len(h.history)-h.limit:]...)
	}

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}

	return event
}

// Subscribe returns events after fromSeq that are still in history,
// a live channel, and a cancel func the caller must run.
func (h *Hub) Subscribe(fromSeq int64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]Event, 0)
	for _, event := range h.history {
		if event.Seq > fromSeq {
			replay = append(replay, event)
		}
	}

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return replay, ch, cancel
}
