package wait

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	Wait struct {
		t       *testing.T
		sub     *events.Subscription
		timeout time.Duration
	}

	Predicate[T any] func(T) bool

	EventFilter Predicate[*api.Event]

	stageEvent struct {
		Stage api.StageID `json:"stage"`
	}
)

const DefaultTimeout = time.Second * 5

func On(t *testing.T, sub *events.Subscription) *Wait {
	return &Wait{
		t:       t,
		sub:     sub,
		timeout: DefaultTimeout,
	}
}

func (w *Wait) WithTimeout(timeout time.Duration) *Wait {
	res := *w
	res.timeout = timeout
	return &res
}

// ForEvents waits for matching events from the subscription
func (w *Wait) ForEvents(count int, filter EventFilter) {
	w.t.Helper()
	w.collect(count, filter)
}

// ForEvent waits for a single matching event
func (w *Wait) ForEvent(filter EventFilter) {
	w.ForEvents(1, filter)
}

// Collect returns the next count events in delivery order
func (w *Wait) Collect(count int) []*api.Event {
	w.t.Helper()
	return w.collect(count, Any)
}

// Drain returns every event already buffered without blocking
func (w *Wait) Drain() []*api.Event {
	var res []*api.Event
	for {
		select {
		case ev, ok := <-w.sub.Events():
			if !ok {
				return res
			}
			res = append(res, ev)
		default:
			return res
		}
	}
}

func (w *Wait) collect(count int, filter EventFilter) []*api.Event {
	w.t.Helper()

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	res := make([]*api.Event, 0, count)
	for len(res) < count {
		select {
		case ev, ok := <-w.sub.Events():
			if !ok {
				w.t.Fatalf(
					"subscription closed before receiving %d events", count,
				)
			}
			if filter(ev) {
				res = append(res, ev)
			}
		case <-deadline.C:
			w.t.Fatalf("timeout waiting for %d events", count)
		}
	}
	return res
}

// Any matches every event
func Any(*api.Event) bool {
	return true
}

// And composes event filters and returns true when all match
func And(filters ...EventFilter) EventFilter {
	return func(ev *api.Event) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

// Type creates a filter for a single event type
func Type(eventType api.EventType) EventFilter {
	return Types(eventType)
}

// Types creates a filter for the given event types
func Types(eventTypes ...api.EventType) EventFilter {
	lookup := make(map[api.EventType]bool, len(eventTypes))
	for _, et := range eventTypes {
		lookup[et] = true
	}
	return func(ev *api.Event) bool {
		return ev != nil && lookup[ev.EventType]
	}
}

// Stage matches events whose payload names the given stage
func Stage(id api.StageID) EventFilter {
	return Unmarshal(func(data stageEvent) bool {
		return data.Stage == id
	})
}

// Waiting matches waiting_for_input events
func Waiting() EventFilter {
	return Type(api.EventTypeWaitingForInput)
}

// Finished matches workflow_finished events carrying the given status
func Finished(status api.SessionStatus) EventFilter {
	return And(
		Type(api.EventTypeWorkflowFinished),
		Unmarshal(func(data api.WorkflowFinishedEvent) bool {
			return data.Status == status
		}),
	)
}

// Unmarshal creates a filter that unmarshals the payload and applies pred
func Unmarshal[T any](pred Predicate[T]) EventFilter {
	return func(ev *api.Event) bool {
		if ev == nil {
			return false
		}
		var data T
		if json.Unmarshal(ev.Payload, &data) != nil {
			return false
		}
		return pred(data)
	}
}

// Kinds returns the event types of evs in order
func Kinds(evs []*api.Event) []api.EventType {
	res := make([]api.EventType, 0, len(evs))
	for _, ev := range evs {
		res = append(res, ev.EventType)
	}
	return res
}
