package session_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/session"
)

func TestLeaseFailsFast(t *testing.T) {
	leases := session.NewLeases()

	release, err := leases.Acquire("s-1")
	require.NoError(t, err)
	assert.True(t, leases.Held("s-1"))

	_, err = leases.Acquire("s-1")
	assert.ErrorIs(t, err, session.ErrSessionBusy)

	other, err := leases.Acquire("s-2")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, leases.Held("s-1"))

	again, err := leases.Acquire("s-1")
	require.NoError(t, err)
	again()
}

func TestLeaseSingleWinner(t *testing.T) {
	leases := session.NewLeases()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := leases.Acquire("s-race"); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
