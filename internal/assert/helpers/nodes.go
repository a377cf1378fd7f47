package helpers

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/graph"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// Recorder counts node invocations
type Recorder struct {
	calls []api.StageID
	mu    sync.Mutex
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Wrap returns a node that records each call before delegating
func (r *Recorder) Wrap(stage api.StageID, node graph.Node) graph.Node {
	return func(
		ctx context.Context, st *api.WorkflowState, deps *collab.Collaborators,
	) (*api.PartialUpdate, error) {
		r.mu.Lock()
		r.calls = append(r.calls, stage)
		r.mu.Unlock()
		return node(ctx, st, deps)
	}
}

// Calls returns the recorded stages in call order
func (r *Recorder) Calls() []api.StageID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.StageID(nil), r.calls...)
}

// Count returns how many times a stage ran
func (r *Recorder) Count(stage api.StageID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.calls {
		if s == stage {
			n++
		}
	}
	return n
}

// Emit returns a node that only writes audit lines
func Emit(lines ...string) graph.Node {
	return Returning(func(*api.WorkflowState) *api.PartialUpdate {
		return api.NewUpdate(lines...)
	})
}

// Returning adapts a state function into a node that never fails
func Returning(fn func(*api.WorkflowState) *api.PartialUpdate) graph.Node {
	return func(
		_ context.Context, st *api.WorkflowState, _ *collab.Collaborators,
	) (*api.PartialUpdate, error) {
		return fn(st), nil
	}
}

// Fail returns a node that reports err
func Fail(err error, audit ...string) graph.Node {
	return func(
		context.Context, *api.WorkflowState, *collab.Collaborators,
	) (*api.PartialUpdate, error) {
		return api.NewUpdate(audit...), err
	}
}

// Panic returns a node that panics with v
func Panic(v any) graph.Node {
	return func(
		context.Context, *api.WorkflowState, *collab.Collaborators,
	) (*api.PartialUpdate, error) {
		panic(v)
	}
}

// Block returns a node that signals started and then waits for release
func Block(started chan<- struct{}, release <-chan struct{}) graph.Node {
	return func(
		ctx context.Context, _ *api.WorkflowState, _ *collab.Collaborators,
	) (*api.PartialUpdate, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return api.NewUpdate(), nil
	}
}

// AskFor returns a node that requires the named fields for identifier.
// Fields already answered in the state stay answered, and the node pauses
// while any remain open
func AskFor(identifier string, fields ...string) graph.Node {
	return Returning(func(st *api.WorkflowState) *api.PartialUpdate {
		answered := map[string]*string{}
		for _, item := range st.StageResults {
			for _, f := range item.MissingFields {
				if f.IsAnswered {
					answered[f.FieldName] = f.AnswerValue
				}
			}
		}

		item := api.PredictionItem{
			Identifier:    identifier,
			Status:        api.PredictionPassing,
			MissingFields: []api.FieldRequest{},
		}
		for _, name := range fields {
			req := api.FieldRequest{FieldName: name}
			if val, ok := answered[name]; ok {
				req.IsAnswered = true
				req.AnswerValue = val
			} else {
				item.Status = api.PredictionFailing
			}
			item.MissingFields = append(item.MissingFields, req)
		}

		return api.NewUpdate().
			WithResults([]api.PredictionItem{item}).
			WithAwaiting(item.Status == api.PredictionFailing, "")
	})
}

// AlwaysAsk returns a node that reports the same fields as open on every
// pass. Answers recorded through Resume are kept by the engine
func AlwaysAsk(identifier string, fields ...string) graph.Node {
	return Returning(func(*api.WorkflowState) *api.PartialUpdate {
		item := api.PredictionItem{
			Identifier: identifier,
			Status:     api.PredictionFailing,
		}
		for _, name := range fields {
			item.MissingFields = append(item.MissingFields,
				api.FieldRequest{FieldName: name})
		}
		return api.NewUpdate().
			WithResults([]api.PredictionItem{item}).
			WithAwaiting(true, "")
	})
}

// Linear builds a graph running the stages in the order given, the last
// one terminal
func Linear(t *testing.T, stages ...Stage) *graph.Graph {
	t.Helper()
	require.NotEmpty(t, stages)

	b := graph.NewBuilder().Entry(stages[0].ID)
	for i, s := range stages {
		b.Stage(s.ID, s.Node)
		if i > 0 {
			b.Edge(stages[i-1].ID, s.ID)
		}
	}
	b.Terminal(stages[len(stages)-1].ID)

	g, err := b.Build()
	require.NoError(t, err)
	return g
}

// Stage pairs a stage ID with its node for Linear
type Stage struct {
	Node graph.Node
	ID   api.StageID
}

// S is shorthand for a Stage
func S(id api.StageID, node graph.Node) Stage {
	return Stage{ID: id, Node: node}
}
