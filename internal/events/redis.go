package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

type (
	// RedisSink publishes events to a per-session Redis channel so that
	// subscribers attached to other processes can receive them
	RedisSink struct {
		client *redis.Client
		prefix string
	}

	// Relay forwards events from Redis channels into a local Sink
	Relay struct {
		client *redis.Client
		target Sink
		prefix string
	}
)

var _ Sink = (*RedisSink)(nil)

// NewRedisSink returns a Sink publishing under the given key prefix
func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisSink) Publish(ctx context.Context, ev *api.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode event",
			log.SessionID(ev.SessionID),
			log.Error(err))
		return
	}
	channel := channelFor(s.prefix, ev.SessionID)
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		slog.Warn("Failed to publish event",
			log.SessionID(ev.SessionID),
			log.EventType(ev.EventType),
			log.Error(err))
	}
}

// NewRelay returns a Relay delivering into target
func NewRelay(client *redis.Client, prefix string, target Sink) *Relay {
	return &Relay{
		client: client,
		target: target,
		prefix: prefix,
	}
}

// Run forwards events until ctx is cancelled. The ready channel, when not
// nil, is closed once the pattern subscription is active
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.PSubscribe(ctx, channelFor(r.prefix, "*"))
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	var ev api.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		slog.Warn("Dropping undecodable event",
			slog.String("channel", msg.Channel),
			log.Error(err))
		return
	}
	if ev.SessionID == "" {
		ev.SessionID = api.SessionID(
			strings.TrimPrefix(msg.Channel, channelFor(r.prefix, "")),
		)
	}
	r.target.Publish(ctx, &ev)
}

func channelFor(prefix string, id api.SessionID) string {
	return prefix + ":events:" + string(id)
}
