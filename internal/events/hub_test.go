package events_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

func event(id api.SessionID, typ api.EventType) *api.Event {
	return &api.Event{SessionID: id, EventType: typ}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub := events.NewHub()
	hub.Publish(context.Background(), event("nobody", api.EventTypeNodeExecuted))
	assert.Equal(t, 0, hub.Subscribers("nobody"))
}

func TestPublishOrdering(t *testing.T) {
	hub := events.NewHub()
	sub := hub.Subscribe("s-1")
	defer sub.Close()

	order := []api.EventType{
		api.EventTypeNodeExecuted,
		api.EventTypeStageProgressed,
		api.EventTypeNodeExecuted,
		api.EventTypeStageProgressed,
		api.EventTypeWaitingForInput,
	}
	for _, typ := range order {
		hub.Publish(context.Background(), event("s-1", typ))
	}

	for _, typ := range order {
		ev := <-sub.Events()
		assert.Equal(t, typ, ev.EventType)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	hub := events.NewHub()
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")
	defer a.Close()
	defer b.Close()

	hub.Publish(context.Background(), event("a", api.EventTypeNodeExecuted))

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 0)
}

func TestSlowSubscriberDropped(t *testing.T) {
	var dropped []api.SessionID
	hub := events.NewHub(
		events.WithBuffer(1),
		events.WithDropHandler(func(id api.SessionID) {
			dropped = append(dropped, id)
		}),
	)
	slow := hub.Subscribe("s-1")
	fast := hub.Subscribe("s-1")

	ctx := context.Background()
	hub.Publish(ctx, event("s-1", api.EventTypeNodeExecuted))
	<-fast.Events()
	hub.Publish(ctx, event("s-1", api.EventTypeStageProgressed))

	assert.Equal(t, []api.SessionID{"s-1"}, dropped)
	assert.Equal(t, 1, hub.Subscribers("s-1"))

	first, ok := <-slow.Events()
	require.True(t, ok)
	assert.Equal(t, api.EventTypeNodeExecuted, first.EventType)
	_, ok = <-slow.Events()
	assert.False(t, ok)

	ev := <-fast.Events()
	assert.Equal(t, api.EventTypeStageProgressed, ev.EventType)

	slow.Close()
	fast.Close()
	assert.Equal(t, 0, hub.Subscribers("s-1"))
}

func TestSubscriptionCloseIdempotent(t *testing.T) {
	hub := events.NewHub()
	sub := hub.Subscribe("s-1")
	assert.Equal(t, api.SessionID("s-1"), sub.SessionID())

	sub.Close()
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers("s-1"))

	again := hub.Subscribe("s-1")
	defer again.Close()
	hub.Publish(context.Background(), event("s-1", api.EventTypeNodeExecuted))
	assert.Len(t, again.Events(), 1)
}

func TestHubClose(t *testing.T) {
	hub := events.NewHub()
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")

	hub.Close()

	_, ok := <-a.Events()
	assert.False(t, ok)
	_, ok = <-b.Events()
	assert.False(t, ok)

	a.Close()
	assert.Equal(t, 0, hub.Subscribers("a"))
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	hub := events.NewHub()
	var wg sync.WaitGroup

	for i := range 8 {
		id := api.SessionID(fmt.Sprintf("s-%d", i))
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				sub := hub.Subscribe(id)
				sub.Close()
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				hub.Publish(context.Background(),
					event(id, api.EventTypeNodeExecuted))
			}
		}()
	}
	wg.Wait()
}

func TestMulti(t *testing.T) {
	var got []string
	a := events.SinkFunc(func(context.Context, *api.Event) {
		got = append(got, "a")
	})
	b := events.SinkFunc(func(context.Context, *api.Event) {
		got = append(got, "b")
	})

	sink := events.Multi(a, nil, b, events.Discard)
	sink.Publish(context.Background(), event("s", api.EventTypeNodeExecuted))
	assert.Equal(t, []string{"a", "b"}, got)
}
