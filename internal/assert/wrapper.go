package assert

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/config"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// Wrapper wraps testify assertions with session-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
	Require *require.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 20 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus session-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    require.New(t),
	}
}

// SessionStatus asserts the status of a session
func (w *Wrapper) SessionStatus(
	st *api.WorkflowState, expected api.SessionStatus,
) {
	w.Helper()
	w.Require.NotNil(st)
	w.Equal(expected, st.Status)
}

// Paused asserts that a session is waiting for input with a question
func (w *Wrapper) Paused(st *api.WorkflowState) {
	w.Helper()
	w.SessionStatus(st, api.SessionAwaiting)
	w.True(st.AwaitingInput)
	w.NotEmpty(st.Question())
	w.True(st.HasUnanswered())
}

// NotPaused asserts that a session carries no pending question
func (w *Wrapper) NotPaused(st *api.WorkflowState) {
	w.Helper()
	w.Require.NotNil(st)
	w.False(st.AwaitingInput)
	w.Nil(st.PendingQuestion)
}

// AuditContains asserts that some audit line contains the given text
func (w *Wrapper) AuditContains(st *api.WorkflowState, text string) {
	w.Helper()
	w.Require.NotNil(st)
	for _, line := range st.AuditTrail {
		if strings.Contains(line, text) {
			return
		}
	}
	w.Assertions.Fail(
		"audit trail missing entry", "want %q in %v", text, st.AuditTrail,
	)
}

// AuditLacks asserts that no audit line contains the given text
func (w *Wrapper) AuditLacks(st *api.WorkflowState, text string) {
	w.Helper()
	w.Require.NotNil(st)
	for _, line := range st.AuditTrail {
		if strings.Contains(line, text) {
			w.Assertions.Fail("unexpected audit entry", "found %q", line)
			return
		}
	}
}

// StagesRun asserts the order of stages recorded in the stage log
func (w *Wrapper) StagesRun(st *api.WorkflowState, stages ...api.StageID) {
	w.Helper()
	w.Require.NotNil(st)
	got := make([]api.StageID, 0, len(st.StageLog))
	for _, ev := range st.StageLog {
		got = append(got, ev.Stage)
	}
	w.Equal(stages, got)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.MaxSteps > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Assertions.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Assertions.Fail(msg, args...)
}
