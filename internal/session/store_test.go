package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/session"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

func newState(id api.SessionID) *api.WorkflowState {
	q := "For service code 2ad, please provide: duration"
	return &api.WorkflowState{
		SessionID:       id,
		DocumentText:    "patient reports cough",
		Status:          api.SessionAwaiting,
		AwaitingInput:   true,
		PendingQuestion: &q,
		StageResults: []api.PredictionItem{{
			Identifier: "2ad",
			Status:     api.PredictionFailing,
			MissingFields: []api.FieldRequest{
				{FieldName: "duration"},
			},
		}},
		AuditTrail:     []string{"[10:00:00] started"},
		IterationCount: 1,
		IterationLimit: 10,
	}
}

// testStoreContract exercises the behavior every Store must share
func testStoreContract(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		st, ok, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, st)
	})

	t.Run("round trip", func(t *testing.T) {
		in := newState("s-round")
		require.NoError(t, store.Set(ctx, in.SessionID, in))

		out, ok, err := store.Get(ctx, in.SessionID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, in.DocumentText, out.DocumentText)
		assert.Equal(t, in.Question(), out.Question())
		assert.Equal(t, in.StageResults, out.StageResults)
		assert.Equal(t, in.AuditTrail, out.AuditTrail)
		assert.Equal(t, in.IterationCount, out.IterationCount)
	})

	t.Run("last writer wins", func(t *testing.T) {
		first := newState("s-lww")
		require.NoError(t, store.Set(ctx, first.SessionID, first))

		second := newState("s-lww")
		second.DocumentText = "second"
		require.NoError(t, store.Set(ctx, second.SessionID, second))

		out, ok, err := store.Get(ctx, "s-lww")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", out.DocumentText)
	})

	t.Run("isolated from caller", func(t *testing.T) {
		in := newState("s-iso")
		require.NoError(t, store.Set(ctx, in.SessionID, in))
		in.AuditTrail[0] = "mutated"

		out, _, err := store.Get(ctx, in.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "[10:00:00] started", out.AuditTrail[0])
	})

	t.Run("delete", func(t *testing.T) {
		in := newState("s-del")
		require.NoError(t, store.Set(ctx, in.SessionID, in))
		require.NoError(t, store.Delete(ctx, in.SessionID))

		_, ok, err := store.Get(ctx, in.SessionID)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, store.Delete(ctx, in.SessionID))
	})

	t.Run("empty id", func(t *testing.T) {
		_, _, err := store.Get(ctx, "")
		assert.ErrorIs(t, err, session.ErrEmptyID)
		assert.ErrorIs(t,
			store.Set(ctx, "", newState("")), session.ErrEmptyID,
		)
		assert.ErrorIs(t, store.Delete(ctx, ""), session.ErrEmptyID)
	})

	t.Run("concurrent sessions", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := api.SessionID(fmt.Sprintf("s-par-%d", i))
				assert.NoError(t, store.Set(ctx, id, newState(id)))
			}()
		}
		wg.Wait()

		for i := range 16 {
			id := api.SessionID(fmt.Sprintf("s-par-%d", i))
			_, ok, err := store.Get(ctx, id)
			assert.NoError(t, err)
			assert.True(t, ok)
		}
	})
}
