package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

// Submit creates a session for a clinical note and runs its first
// traversal from the graph's entry stage
func (e *Engine) Submit(
	ctx context.Context, req api.SubmitRequest,
) (*api.WorkflowState, error) {
	if strings.TrimSpace(req.Document) == "" {
		return nil, ErrEmptyDocument
	}

	id := req.SessionID
	if id == "" {
		id = api.SessionID(uuid.NewString())
	}

	release, err := e.leases.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, ok, err := e.store.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadSession, err)
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	limit := req.IterationLimit
	if limit <= 0 {
		limit = e.iterationLimit
	}

	now := e.clock.Now()
	st := &api.WorkflowState{
		SessionID:      id,
		DocumentText:   req.Document,
		Status:         api.SessionRunning,
		CurrentStage:   e.graph.Entry(),
		StageResults:   []api.PredictionItem{},
		AuditTrail:     []string{},
		StageLog:       []api.StageEvent{},
		Attributes:     api.Attributes{},
		IterationLimit: limit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e.audit(st, "session created")

	if err := e.persist(ctx, st); err != nil {
		return nil, err
	}

	slog.Info("Session submitted",
		log.SessionID(id),
		slog.Int("iteration_limit", limit))

	return e.run(ctx, st, e.graph.Entry())
}
