package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	as "github.com/wilson-pinto/medical-agent-poc/internal/assert"
	"github.com/wilson-pinto/medical-agent-poc/internal/assert/helpers"
	"github.com/wilson-pinto/medical-agent-poc/internal/assert/wait"
	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/engine"
	"github.com/wilson-pinto/medical-agent-poc/internal/graph"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

func submit(
	t *testing.T, env *helpers.TestEnv, id api.SessionID,
) (*api.WorkflowState, error) {
	t.Helper()
	return env.Engine.Submit(context.Background(), api.SubmitRequest{
		SessionID: id,
		Document:  note,
	})
}

func TestEventOrderOnCompletion(t *testing.T) {
	helpers.WithTestEnv(t, linearGraph(t), func(env *helpers.TestEnv) {
		sub := env.Subscribe(t, "s1")
		_, err := submit(t, env, "s1")
		require.NoError(t, err)

		evs := wait.On(t, sub).Collect(7)
		assert.Equal(t, []api.EventType{
			api.EventTypeNodeExecuted, api.EventTypeStageProgressed,
			api.EventTypeNodeExecuted, api.EventTypeStageProgressed,
			api.EventTypeNodeExecuted, api.EventTypeStageProgressed,
			api.EventTypeWorkflowFinished,
		}, wait.Kinds(evs))
		assert.True(t, wait.Stage("intake")(evs[0]))
		assert.True(t, wait.Stage("render")(evs[6]))
		assert.True(t, wait.Finished(api.SessionCompleted)(evs[6]))
		assert.Empty(t, wait.On(t, sub).Drain())
	})
}

func TestStageProgressedCarriesDescription(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("intake", helpers.Returning(
			func(*api.WorkflowState) *api.PartialUpdate {
				return api.NewUpdate().WithDescription("Read the note")
			},
		)),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		sub := env.Subscribe(t, "s1")
		st, err := submit(t, env, "s1")
		require.NoError(t, err)

		evs := wait.On(t, sub).Collect(2)
		var payload api.StageProgressedEvent
		require.NoError(t, json.Unmarshal(evs[1].Payload, &payload))
		assert.Equal(t, "Read the note", payload.Description)
		assert.Equal(t, api.SessionRunning, payload.Status)
		assert.Equal(t, "Read the note", st.StageLog[0].Description)
		assert.Equal(t, "render executed", st.StageLog[1].Description)
	})
}

func TestRoutingBranch(t *testing.T) {
	rec := helpers.NewRecorder()
	route := func(st *api.WorkflowState) graph.Target {
		if st.Attributes.Bool("urgent") {
			return graph.To("escalate")
		}
		return graph.To("render")
	}
	g, err := graph.NewBuilder().
		Stage("triage", rec.Wrap("triage", helpers.Returning(
			func(st *api.WorkflowState) *api.PartialUpdate {
				return api.NewUpdate().WithAttribute("urgent", true)
			},
		))).
		Stage("escalate", rec.Wrap("escalate", helpers.Emit())).
		Stage("render", rec.Wrap("render", helpers.Emit())).
		Entry("triage").
		Branch("triage", route, graph.To("escalate"), graph.To("render")).
		Edge("escalate", "render").
		Terminal("render").
		Build()
	require.NoError(t, err)

	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		st, err := submit(t, env, "s1")
		require.NoError(t, err)
		assert.Equal(t,
			[]api.StageID{"triage", "escalate", "render"}, rec.Calls(),
		)
		assert.True(t, st.Attributes.Bool("urgent"))
	})
}

func TestFinishRouteCompletes(t *testing.T) {
	g, err := graph.NewBuilder().
		Stage("only", helpers.Emit()).
		Entry("only").
		Finish("only").
		Build()
	require.NoError(t, err)

	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		st, err := submit(t, env, "s1")
		require.NoError(t, err)
		assert.Equal(t, api.SessionCompleted, st.Status)
	})
}

func TestRecoverableErrorContinues(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("search", helpers.Fail(
			errors.New("service unavailable"), "search attempted",
		)),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		w := as.New(t)
		st, err := submit(t, env, "s1")
		w.Require.NoError(err)

		w.SessionStatus(st, api.SessionCompleted)
		w.AuditContains(st, "search attempted")
		w.AuditContains(st, "search failed: service unavailable")
		w.AuditLacks(st, "search completed")
		w.StagesRun(st, "search", "render")
		w.Contains(string(st.StageLog[0].Data), "service unavailable")
		w.Equal(1, env.Observer.Stage("search", engine.OutcomeError))
	})
}

func TestRecoverableErrorDropsUpdate(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("search", func(
			context.Context, *api.WorkflowState, *collab.Collaborators,
		) (*api.PartialUpdate, error) {
			return api.NewUpdate().WithDocument("replaced").
				WithAwaiting(true, "q?"), errors.New("partial")
		}),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		st, err := submit(t, env, "s1")
		require.NoError(t, err)
		assert.Equal(t, note, st.DocumentText)
		assert.Equal(t, api.SessionCompleted, st.Status)
	})
}

func TestFatalErrorKeepsLastPersisted(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("intake", helpers.Emit("intake done")),
		helpers.S("code", helpers.Fail(graph.Fatal(errors.New("corrupt")))),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		sub := env.Subscribe(t, "s1")
		_, err := submit(t, env, "s1")
		assert.ErrorIs(t, err, graph.ErrFatal)

		st, err := env.Engine.Get(context.Background(), "s1")
		require.NoError(t, err)
		assert.Equal(t, api.SessionRunning, st.Status)
		assert.False(t, st.AwaitingInput)
		assert.Len(t, st.StageLog, 1)

		evs := wait.On(t, sub).Collect(2)
		assert.True(t, wait.Stage("intake")(evs[1]))
		assert.Empty(t, wait.On(t, sub).Drain())
		assert.Equal(t, 1, env.Observer.Stage("code", engine.OutcomeFatal))
		assert.Equal(t, 1, env.Observer.Session(api.SessionFailed))
	})
}

func TestPanicIsFatal(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("intake", helpers.Panic("nil map")),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		_, err := submit(t, env, "s1")
		assert.ErrorIs(t, err, engine.ErrStagePanic)
		assert.ErrorIs(t, err, graph.ErrFatal)
	})
}

func TestStepCeiling(t *testing.T) {
	loop := func(*api.WorkflowState) graph.Target {
		return graph.To("b")
	}
	g, err := graph.NewBuilder().
		Stage("a", helpers.Emit()).
		Stage("b", helpers.Emit()).
		Stage("done", helpers.Emit()).
		Entry("a").
		Branch("a", loop, graph.To("b"), graph.To("done")).
		Edge("b", "a").
		Terminal("done").
		Build()
	require.NoError(t, err)

	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		w := as.New(t)
		sub := env.Subscribe(t, "s1")
		_, err := submit(t, env, "s1")
		w.ErrorIs(err, engine.ErrStepCeiling)

		st, err := env.Engine.Get(context.Background(), "s1")
		w.Require.NoError(err)
		w.SessionStatus(st, api.SessionFailed)
		w.NotPaused(st)
		w.AuditContains(st, "step ceiling of 16")
		w.Len(st.StageLog, env.Config.MaxSteps)

		evs := wait.On(t, sub).Collect(2 * env.Config.MaxSteps)
		for _, ev := range evs {
			w.NotEqual(api.EventTypeWorkflowFinished, ev.EventType)
		}
		w.Equal(1, env.Observer.Session(api.SessionFailed))
	})
}

func TestNodeCannotMutateStateDirectly(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("intake", helpers.Returning(
			func(st *api.WorkflowState) *api.PartialUpdate {
				st.DocumentText = "mutated"
				st.AuditTrail = append(st.AuditTrail, "sneaky")
				return nil
			},
		)),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		w := as.New(t)
		st, err := submit(t, env, "s1")
		w.Require.NoError(err)
		w.Equal(note, st.DocumentText)
		w.AuditLacks(st, "sneaky")
		w.AuditContains(st, "intake completed")
	})
}

func TestInvalidPredictionStatusCoerced(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("code", helpers.Returning(
			func(*api.WorkflowState) *api.PartialUpdate {
				return api.NewUpdate().WithResults([]api.PredictionItem{
					{Identifier: "X1", Status: "maybe"},
				})
			},
		)),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		w := as.New(t)
		st, err := submit(t, env, "s1")
		w.Require.NoError(err)
		w.Equal(api.PredictionUnknown, st.StageResults[0].Status)
		w.AuditContains(st, `invalid status "maybe" on X1`)
	})
}

func TestPauseWithoutOpenFieldsIgnored(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("validate", helpers.Returning(
			func(*api.WorkflowState) *api.PartialUpdate {
				return api.NewUpdate().WithAwaiting(true, "anything?")
			},
		)),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		w := as.New(t)
		st, err := submit(t, env, "s1")
		w.Require.NoError(err)
		w.SessionStatus(st, api.SessionCompleted)
		w.AuditContains(st, "pause ignored")
	})
}

func TestResultsReplacedWholesale(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("search", helpers.Returning(
			func(*api.WorkflowState) *api.PartialUpdate {
				return api.NewUpdate().WithResults([]api.PredictionItem{
					{Identifier: "A", Status: api.PredictionUnknown},
					{Identifier: "B", Status: api.PredictionUnknown},
				})
			},
		)),
		helpers.S("rerank", helpers.Returning(
			func(*api.WorkflowState) *api.PartialUpdate {
				return api.NewUpdate().WithResults([]api.PredictionItem{
					{Identifier: "B", Status: api.PredictionPassing},
				})
			},
		)),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		st, err := submit(t, env, "s1")
		require.NoError(t, err)
		require.Len(t, st.StageResults, 1)
		assert.Equal(t, "B", st.StageResults[0].Identifier)
	})
}

func forgingNode(value string) graph.Node {
	return helpers.Returning(func(*api.WorkflowState) *api.PartialUpdate {
		return api.NewUpdate().
			WithResults([]api.PredictionItem{{
				Identifier: "L01",
				Status:     api.PredictionPassing,
				MissingFields: []api.FieldRequest{
					{
						FieldName:   "duration",
						IsAnswered:  true,
						AnswerValue: &value,
					},
					{FieldName: "side", AnswerValue: &value},
				},
			}}).
			WithAwaiting(false, "")
	})
}

func TestNodeCannotForgeAnswers(t *testing.T) {
	rec := helpers.NewRecorder()
	g := helpers.Linear(t,
		helpers.S("validate", forgingNode("forged")),
		helpers.S("render", rec.Wrap("render", helpers.Emit())),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		w := as.New(t)
		_, err := submit(t, env, "s1")
		w.Require.NoError(err)

		st, err := env.Engine.Get(context.Background(), "s1")
		w.Require.NoError(err)
		w.Paused(st)
		w.Equal(
			"For service code L01, please provide: duration, side",
			st.Question(),
		)

		item := st.StageResults[0]
		w.Equal(api.PredictionFailing, item.Status)
		for _, f := range item.MissingFields {
			w.False(f.IsAnswered, f.FieldName)
			w.Nil(f.AnswerValue, f.FieldName)
		}
		w.AuditContains(st, "answer state of duration on L01 restored")
		w.AuditContains(st, "answer state of side on L01 restored")
		w.Equal(0, rec.Count("render"))
	})
}

func TestNodeCannotOverwriteAnswers(t *testing.T) {
	g := helpers.Linear(t,
		helpers.S("validate", forgingNode("tampered")),
		helpers.S("render", helpers.Emit()),
	)
	helpers.WithTestEnv(t, g, func(env *helpers.TestEnv) {
		w := as.New(t)
		_, err := submit(t, env, "s1")
		w.Require.NoError(err)

		st, err := env.Engine.Resume(context.Background(), "s1",
			map[string]string{"duration": "3 days"},
		)
		w.Require.NoError(err)
		w.Paused(st)
		w.Equal("For service code L01, please provide: side", st.Question())

		fields := st.StageResults[0].MissingFields
		w.True(fields[0].IsAnswered)
		w.Equal("3 days", fields[0].Answer())
		w.False(fields[1].IsAnswered)
		w.Nil(fields[1].AnswerValue)
	})
}

func TestCanceledContext(t *testing.T) {
	helpers.WithTestEnv(t, linearGraph(t), func(env *helpers.TestEnv) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := env.Engine.Submit(ctx, api.SubmitRequest{Document: note})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
