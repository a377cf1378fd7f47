package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wilson-pinto/medical-agent-poc/internal/graph"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

// run walks the graph starting at stage until the session pauses,
// finishes, or fails. The caller must hold the session lease
func (e *Engine) run(
	ctx context.Context, st *api.WorkflowState, stage api.StageID,
) (*api.WorkflowState, error) {
	if err := setStatus(st, api.SessionRunning); err != nil {
		return nil, err
	}
	st.IterationCount++

	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if steps >= e.maxSteps {
			return nil, e.haltCeiling(ctx, st, stage)
		}

		st.CurrentStage = stage
		upd, nodeErr := e.execute(ctx, st, stage)
		if graph.IsFatal(nodeErr) {
			return nil, e.haltFatal(st, stage, nodeErr)
		}
		e.merge(st, stage, upd, nodeErr)

		next, err := e.decide(st, stage)
		if err != nil {
			return nil, e.haltFatal(st, stage, graph.Fatal(err))
		}

		if err := e.persist(ctx, st); err != nil {
			return nil, err
		}
		e.publishStep(ctx, st, stage, upd, nodeErr)

		switch st.Status {
		case api.SessionAwaiting:
			e.publish(ctx, st.SessionID, api.EventTypeWaitingForInput,
				api.WaitingForInputEvent{
					Stage:           stage,
					PendingQuestion: st.Question(),
					StageResults:    st.StageResults,
				})
			e.observer.ObserveSession(st.Status)
			slog.Info("Session awaiting input",
				log.SessionID(st.SessionID),
				log.StageID(stage))
			return st.Clone(), nil

		case api.SessionCompleted, api.SessionExhausted:
			e.publish(ctx, st.SessionID, api.EventTypeWorkflowFinished,
				api.WorkflowFinishedEvent{
					Stage:  stage,
					Status: st.Status,
				})
			e.observer.ObserveSession(st.Status)
			slog.Info("Session finished",
				log.SessionID(st.SessionID),
				log.StageID(stage),
				log.Status(st.Status))
			return st.Clone(), nil
		}

		stage = next.Stage()
	}
}

// decide settles the session status after a stage and, when the traversal
// continues, the next stage to run
func (e *Engine) decide(
	st *api.WorkflowState, stage api.StageID,
) (graph.Target, error) {
	if st.AwaitingInput {
		if st.IterationCount >= st.IterationLimit {
			return graph.End, e.exhaust(st)
		}
		return graph.End, setStatus(st, api.SessionAwaiting)
	}

	next := graph.End
	if !e.graph.IsTerminal(stage) {
		var err error
		if next, err = e.graph.Next(stage, st); err != nil {
			return graph.End, err
		}
	}
	if next.IsEnd() {
		e.audit(st, "workflow completed")
		return next, setStatus(st, api.SessionCompleted)
	}
	return next, nil
}

func (e *Engine) exhaust(st *api.WorkflowState) error {
	st.AwaitingInput = false
	st.PendingQuestion = nil
	e.audit(st, fmt.Sprintf(
		"max iterations reached (%d of %d); unanswered fields abandoned",
		st.IterationCount, st.IterationLimit,
	))
	return setStatus(st, api.SessionExhausted)
}

// execute invokes the node for a stage against a copy of the state, so a
// node can only change the session through the update it returns
func (e *Engine) execute(
	ctx context.Context, st *api.WorkflowState, stage api.StageID,
) (upd *api.PartialUpdate, err error) {
	node, ok := e.graph.Node(stage)
	if !ok {
		return nil, graph.Fatal(fmt.Errorf("%w: %s", ErrUnknownStage, stage))
	}

	start := e.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			upd = nil
			err = graph.Fatal(fmt.Errorf("%w: %v", ErrStagePanic, r))
		}
		e.observer.ObserveStage(stage, e.clock.Since(start), outcomeOf(err))
	}()

	upd, err = node(ctx, st.Clone(), e.deps)
	if upd == nil {
		upd = api.NewUpdate()
	}
	if err != nil && !graph.IsFatal(err) {
		slog.Warn("Stage reported error",
			log.SessionID(st.SessionID),
			log.StageID(stage),
			log.Error(err))
	}
	return upd, err
}

// haltFatal stops the traversal without persisting anything further; the
// session keeps its last persisted state
func (e *Engine) haltFatal(
	st *api.WorkflowState, stage api.StageID, err error,
) error {
	slog.Error("Stage failed fatally",
		log.SessionID(st.SessionID),
		log.StageID(stage),
		log.Error(err))
	e.observer.ObserveSession(api.SessionFailed)
	return fmt.Errorf("stage %s: %w", stage, err)
}

// haltCeiling stops a traversal that ran more steps than any valid graph
// requires. This indicates a routing cycle and is reported as an error
func (e *Engine) haltCeiling(
	ctx context.Context, st *api.WorkflowState, stage api.StageID,
) error {
	st.AwaitingInput = false
	st.PendingQuestion = nil
	e.audit(st, fmt.Sprintf("fatal: step ceiling of %d exceeded at %s",
		e.maxSteps, stage))
	st.UpdatedAt = e.clock.Now()
	if err := setStatus(st, api.SessionFailed); err != nil {
		return err
	}

	slog.Error("Step ceiling exceeded",
		log.SessionID(st.SessionID),
		log.StageID(stage),
		slog.Int("max_steps", e.maxSteps))
	e.observer.ObserveSession(api.SessionFailed)

	if err := e.persist(ctx, st); err != nil {
		return err
	}
	return fmt.Errorf("%w: %d steps", ErrStepCeiling, e.maxSteps)
}

func (e *Engine) persist(ctx context.Context, st *api.WorkflowState) error {
	if err := e.store.Set(ctx, st.SessionID, st); err != nil {
		slog.Error("Failed to persist session",
			log.SessionID(st.SessionID),
			log.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistSession, err)
	}
	return nil
}

func (e *Engine) publishStep(
	ctx context.Context, st *api.WorkflowState, stage api.StageID,
	upd *api.PartialUpdate, nodeErr error,
) {
	executed := api.NodeExecutedEvent{
		Stage:  stage,
		Update: upd,
	}
	if nodeErr != nil {
		executed.Error = nodeErr.Error()
	}
	e.publish(ctx, st.SessionID, api.EventTypeNodeExecuted, executed)

	e.publish(ctx, st.SessionID, api.EventTypeStageProgressed,
		api.StageProgressedEvent{
			Stage:         stage,
			Description:   st.StageLog[len(st.StageLog)-1].Description,
			Status:        st.Status,
			AwaitingInput: st.AwaitingInput,
		})
}

func (e *Engine) publish(
	ctx context.Context, id api.SessionID, typ api.EventType, payload any,
) {
	ev, err := api.NewEvent(id, typ, payload)
	if err != nil {
		slog.Error("Failed to build event",
			log.SessionID(id),
			log.EventType(typ),
			log.Error(err))
		return
	}
	e.sink.Publish(ctx, ev)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case graph.IsFatal(err):
		return OutcomeFatal
	default:
		return OutcomeError
	}
}
