package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

type (
	// Hub fans events out to in-process subscribers, one topic per session.
	// A subscriber whose buffer is full is closed and removed without
	// affecting any other subscriber
	Hub struct {
		topics map[api.SessionID]*topic
		onDrop func(api.SessionID)
		buffer int
		mu     sync.Mutex
	}

	// Subscription receives the events of one session
	Subscription struct {
		hub    *Hub
		ch     chan *api.Event
		id     api.SessionID
		closed bool
	}

	// HubOption configures a Hub
	HubOption func(*Hub)

	topic struct {
		subs map[*Subscription]struct{}
		mu   sync.Mutex
		dead bool
	}
)

// DefaultBuffer is the per-subscriber channel capacity
const DefaultBuffer = 64

var _ Sink = (*Hub)(nil)

// WithBuffer sets the per-subscriber channel capacity
func WithBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// WithDropHandler registers a callback invoked when a slow subscriber is
// dropped
func WithDropHandler(fn func(api.SessionID)) HubOption {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

// NewHub returns a Hub with no subscribers
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics: map[api.SessionID]*topic{},
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscriber for a session
func (h *Hub) Subscribe(id api.SessionID) *Subscription {
	sub := &Subscription{
		hub: h,
		ch:  make(chan *api.Event, h.buffer),
		id:  id,
	}

	for {
		t := h.topicFor(id)
		t.mu.Lock()
		if t.dead {
			t.mu.Unlock()
			continue
		}
		t.subs[sub] = struct{}{}
		t.mu.Unlock()
		return sub
	}
}

func (h *Hub) topicFor(id api.SessionID) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[id]
	if !ok {
		t = &topic{subs: map[*Subscription]struct{}{}}
		h.topics[id] = t
	}
	return t
}

// Publish delivers the event to every subscriber of its session. The
// topic lock is held for the whole fan-out, so events published for one
// session reach each subscriber in publish order
func (h *Hub) Publish(_ context.Context, ev *api.Event) {
	h.mu.Lock()
	t, ok := h.topics[ev.SessionID]
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("Dropping slow subscriber",
				log.SessionID(ev.SessionID),
				log.EventType(ev.EventType))
			sub.closeLocked(t)
			if h.onDrop != nil {
				h.onDrop(ev.SessionID)
			}
		}
	}
	h.pruneTopic(ev.SessionID, t)
}

// Subscribers returns the number of live subscribers for a session
func (h *Hub) Subscribers(id api.SessionID) int {
	h.mu.Lock()
	t, ok := h.topics[id]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close closes every subscription on every session
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = map[api.SessionID]*topic{}
	h.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		for sub := range t.subs {
			sub.closeLocked(t)
		}
		t.dead = true
		t.mu.Unlock()
	}
}

// Events returns the channel on which events arrive. It is closed when
// the subscription ends for any reason
func (s *Subscription) Events() <-chan *api.Event {
	return s.ch
}

// SessionID returns the session this subscription follows
func (s *Subscription) SessionID() api.SessionID {
	return s.id
}

// Close ends the subscription. Safe to call more than once
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	t, ok := h.topics[s.id]
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s.closeLocked(t)
	h.pruneTopic(s.id, t)
}

func (s *Subscription) closeLocked(t *topic) {
	if s.closed {
		return
	}
	s.closed = true
	delete(t.subs, s)
	close(s.ch)
}

// pruneTopic retires an empty topic. The caller holds the topic lock;
// the hub lock is only ever taken after a topic lock, never before
func (h *Hub) pruneTopic(id api.SessionID, t *topic) {
	if len(t.subs) > 0 || t.dead {
		return
	}
	t.dead = true
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[id] == t {
		delete(h.topics, id)
	}
}
