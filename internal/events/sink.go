// Package events delivers live session events to subscribers
//
// Delivery is best effort. A Sink never reports failures to its caller;
// the durable stage log on each session is the source of truth
package events

import (
	"context"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// Sink accepts events published by the engine
	Sink interface {
		Publish(ctx context.Context, ev *api.Event)
	}

	// SinkFunc adapts a function to the Sink interface
	SinkFunc func(context.Context, *api.Event)

	multiSink []Sink
)

// Discard is a Sink that drops every event
var Discard Sink = SinkFunc(func(context.Context, *api.Event) {})

func (f SinkFunc) Publish(ctx context.Context, ev *api.Event) {
	f(ctx, ev)
}

// Multi returns a Sink that publishes to every given sink in order
func Multi(sinks ...Sink) Sink {
	res := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			res = append(res, s)
		}
	}
	return res
}

func (m multiSink) Publish(ctx context.Context, ev *api.Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}
