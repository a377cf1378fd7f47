package helpers

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/config"
	"github.com/wilson-pinto/medical-agent-poc/internal/engine"
	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/internal/graph"
	"github.com/wilson-pinto/medical-agent-poc/internal/session"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// TestEnv holds all the components needed for engine testing
	TestEnv struct {
		Engine   *engine.Engine
		Store    *session.MemoryStore
		Hub      *events.Hub
		Clock    *clockwork.FakeClock
		Config   *config.Config
		Observer *Observer
		Cleanup  func()
	}

	// Option adjusts a TestEnv before its engine is constructed
	Option func(*envSetup)

	envSetup struct {
		cfg   *config.Config
		deps  *collab.Collaborators
		sinks []events.Sink
	}
)

// Epoch is the instant every test clock starts at
var Epoch = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

// NewTestConfig creates a default configuration with debug logging and a
// small step ceiling
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.MaxSteps = 16
	return cfg
}

// WithConfig replaces the test configuration
func WithConfig(fn func(*config.Config)) Option {
	return func(s *envSetup) {
		fn(s.cfg)
	}
}

// WithCollaborators supplies the collaborators handed to every node
func WithCollaborators(deps *collab.Collaborators) Option {
	return func(s *envSetup) {
		s.deps = deps
	}
}

// WithSink adds a sink that receives every event alongside the hub
func WithSink(sink events.Sink) Option {
	return func(s *envSetup) {
		s.sinks = append(s.sinks, sink)
	}
}

// NewTestEnv creates an engine over an in-memory store, an event hub and a
// fake clock
func NewTestEnv(t *testing.T, g *graph.Graph, opts ...Option) *TestEnv {
	t.Helper()

	setup := &envSetup{cfg: NewTestConfig()}
	for _, opt := range opts {
		opt(setup)
	}

	store := session.NewMemoryStore()
	hub := events.NewHub(events.WithBuffer(256))
	clock := clockwork.NewFakeClockAt(Epoch)
	obs := NewObserver()

	eng, err := engine.New(setup.cfg, engine.Dependencies{
		Graph:         g,
		Store:         store,
		Sink:          events.Multi(append([]events.Sink{hub}, setup.sinks...)...),
		Collaborators: setup.deps,
		Clock:         clock,
		Observer:      obs,
	})
	require.NoError(t, err)

	return &TestEnv{
		Engine:   eng,
		Store:    store,
		Hub:      hub,
		Clock:    clock,
		Config:   setup.cfg,
		Observer: obs,
		Cleanup: func() {
			hub.Close()
			_ = store.Close()
		},
	}
}

// WithTestEnv creates a test environment, executes the provided function
// with it, and ensures cleanup happens automatically
func WithTestEnv(
	t *testing.T, g *graph.Graph, fn func(*TestEnv), opts ...Option,
) {
	t.Helper()
	env := NewTestEnv(t, g, opts...)
	defer env.Cleanup()
	fn(env)
}

// WithEngine creates a test engine, executes the provided function with
// it, and ensures cleanup happens automatically
func WithEngine(t *testing.T, g *graph.Graph, fn func(*engine.Engine)) {
	t.Helper()
	WithTestEnv(t, g, func(env *TestEnv) {
		fn(env.Engine)
	})
}

// Subscribe opens a subscription that is closed when the test ends
func (e *TestEnv) Subscribe(
	t *testing.T, id api.SessionID,
) *events.Subscription {
	t.Helper()
	sub := e.Hub.Subscribe(id)
	t.Cleanup(sub.Close)
	return sub
}
