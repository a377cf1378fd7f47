package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

// Resume merges answers into a paused session and continues the traversal
// from the stage that paused it. Answers for fields that are already
// answered are ignored, so a repeated Resume is harmless
func (e *Engine) Resume(
	ctx context.Context, id api.SessionID, answers map[string]string,
) (*api.WorkflowState, error) {
	st, err := e.resume(ctx, id, answers)
	e.observer.ObserveResume(resumeOutcome(err))
	return st, err
}

func (e *Engine) resume(
	ctx context.Context, id api.SessionID, answers map[string]string,
) (*api.WorkflowState, error) {
	release, err := e.leases.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status == api.SessionExhausted {
		return nil, fmt.Errorf("%w: %s", ErrIterationLimit, id)
	}

	e.mergeAnswers(st, answers)

	if !st.AwaitingInput {
		e.audit(st, "resume ignored: session not awaiting input")
		st.UpdatedAt = e.clock.Now()
		if err := e.persist(ctx, st); err != nil {
			return nil, err
		}
		slog.Info("Resume on idle session",
			log.SessionID(id),
			log.Status(st.Status))
		return st, nil
	}

	st.AwaitingInput = false
	st.PendingQuestion = nil
	slog.Info("Session resumed",
		log.SessionID(id),
		log.StageID(st.CurrentStage))

	return e.run(ctx, st, st.CurrentStage)
}

// mergeAnswers marks matching unanswered fields as answered and appends
// each new answer to the document so later stages can see it
func (e *Engine) mergeAnswers(
	st *api.WorkflowState, answers map[string]string,
) {
	matched := map[string]bool{}
	appended := map[string]bool{}
	var lines []string
	count := 0

	for i := range st.StageResults {
		fields := st.StageResults[i].MissingFields
		for j := range fields {
			f := &fields[j]
			val, ok := answers[f.FieldName]
			if !ok {
				continue
			}
			matched[f.FieldName] = true
			if f.IsAnswered {
				continue
			}
			f.IsAnswered = true
			f.AnswerValue = &val
			count++
			if !appended[f.FieldName] {
				appended[f.FieldName] = true
				lines = append(lines, fmt.Sprintf("%s: %s.", f.FieldName, val))
			}
		}
	}

	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !matched[k] {
			e.audit(st, "unmatched answer: "+k)
		}
	}

	if len(lines) > 0 {
		doc := strings.TrimRight(st.DocumentText, " \n")
		st.DocumentText = doc + "\n" + strings.Join(lines, "\n")
	}
	e.audit(st, fmt.Sprintf("resume answered %d field(s)", count))
}

func resumeOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSessionBusy):
		return "busy"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrIterationLimit):
		return "exhausted"
	default:
		return "error"
	}
}
