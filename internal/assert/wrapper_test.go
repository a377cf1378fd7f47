package assert_test

import (
	"testing"
	"time"

	"github.com/wilson-pinto/medical-agent-poc/internal/assert"
	"github.com/wilson-pinto/medical-agent-poc/internal/config"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

func pausedState() *api.WorkflowState {
	q := "For service code A01, please provide: duration"
	return &api.WorkflowState{
		Status:          api.SessionAwaiting,
		AwaitingInput:   true,
		PendingQuestion: &q,
		StageResults: []api.PredictionItem{{
			Identifier: "A01",
			Status:     api.PredictionFailing,
			MissingFields: []api.FieldRequest{
				{FieldName: "duration"},
			},
		}},
		AuditTrail: []string{"[10:00:00] session created"},
		StageLog: []api.StageEvent{
			{Stage: "one"}, {Stage: "two"},
		},
	}
}

func TestNew(t *testing.T) {
	w := assert.New(t)
	if w.T != t {
		t.Error("Wrapper.T should be set to the testing.T instance")
	}
	if w.Assertions == nil || w.Require == nil {
		t.Error("Wrapper assertions should be initialized")
	}
}

func TestSessionHelpers(t *testing.T) {
	w := assert.New(t)
	st := pausedState()

	w.Paused(st)
	w.AuditContains(st, "session created")
	w.AuditLacks(st, "max iterations")
	w.StagesRun(st, "one", "two")

	st.AwaitingInput = false
	st.PendingQuestion = nil
	st.Status = api.SessionCompleted
	w.NotPaused(st)
	w.SessionStatus(st, api.SessionCompleted)
}

func TestConfigHelpers(t *testing.T) {
	w := assert.New(t)
	w.ConfigValid(config.NewDefaultConfig())

	cfg := config.NewDefaultConfig()
	cfg.MaxSteps = 0
	w.ConfigInvalid(cfg, "steps")
}

func TestEventually(t *testing.T) {
	w := assert.New(t)
	count := 0
	w.Eventually(func() bool {
		count++
		return count >= 3
	}, time.Second, "condition should pass")
	w.Equal(3, count)
}
