package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/config"
	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/internal/graph"
	"github.com/wilson-pinto/medical-agent-poc/internal/session"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// Engine drives sessions through the stage graph
	Engine struct {
		graph          *graph.Graph
		deps           *collab.Collaborators
		store          session.Store
		sink           events.Sink
		leases         *session.Leases
		clock          clockwork.Clock
		observer       Observer
		maxSteps       int
		iterationLimit int
	}

	// Dependencies are the collaborators an Engine is constructed with.
	// Sink, Clock, Collaborators and Observer are optional
	Dependencies struct {
		Graph         *graph.Graph
		Store         session.Store
		Sink          events.Sink
		Collaborators *collab.Collaborators
		Clock         clockwork.Clock
		Observer      Observer
	}

	// Observer receives execution measurements
	Observer interface {
		ObserveStage(stage api.StageID, dur time.Duration, outcome string)
		ObserveSession(status api.SessionStatus)
		ObserveResume(outcome string)
	}

	nopObserver struct{}
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeFatal = "fatal"
)

var (
	ErrMissingGraph      = errors.New("engine requires a graph")
	ErrMissingStore      = errors.New("engine requires a session store")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session exists")
	ErrSessionBusy       = session.ErrSessionBusy
	ErrIterationLimit    = errors.New("max iterations exceeded")
	ErrStepCeiling       = errors.New("step ceiling exceeded")
	ErrEmptyDocument     = errors.New("document is empty")
	ErrPersistSession    = errors.New("failed to persist session")
	ErrLoadSession       = errors.New("failed to load session")
	ErrStagePanic        = errors.New("stage panicked")
	ErrUnknownStage      = errors.New("stage not in graph")
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// New creates an Engine bound to a graph and a session store
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if deps.Graph == nil {
		return nil, ErrMissingGraph
	}
	if deps.Store == nil {
		return nil, ErrMissingStore
	}

	e := &Engine{
		graph:          deps.Graph,
		deps:           deps.Collaborators,
		store:          deps.Store,
		sink:           deps.Sink,
		leases:         session.NewLeases(),
		clock:          deps.Clock,
		observer:       deps.Observer,
		maxSteps:       cfg.MaxSteps,
		iterationLimit: cfg.IterationLimit,
	}
	if e.deps == nil {
		e.deps = &collab.Collaborators{}
	}
	if e.sink == nil {
		e.sink = events.Discard
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if e.maxSteps <= 0 {
		e.maxSteps = config.DefaultMaxSteps
	}
	if e.iterationLimit <= 0 {
		e.iterationLimit = config.DefaultIterationLimit
	}
	return e, nil
}

// Get returns the current state of a session
func (e *Engine) Get(
	ctx context.Context, id api.SessionID,
) (*api.WorkflowState, error) {
	st, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadSession, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return st, nil
}

// Clear deletes a session. A session in the middle of a traversal cannot
// be cleared
func (e *Engine) Clear(ctx context.Context, id api.SessionID) error {
	release, err := e.leases.Acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if _, err := e.Get(ctx, id); err != nil {
		return err
	}
	return e.store.Delete(ctx, id)
}

// Now returns the current time from the Engine's clock
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

func (nopObserver) ObserveStage(api.StageID, time.Duration, string) {}
func (nopObserver) ObserveSession(api.SessionStatus)                {}
func (nopObserver) ObserveResume(string)                            {}
