package session

import (
	"fmt"
	"sync"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// Leases grants exclusive, fail-fast ownership of individual sessions.
// A second Acquire for a held session returns ErrSessionBusy immediately
type Leases struct {
	held sync.Map // map[api.SessionID]struct{}
}

// NewLeases returns an empty lease table
func NewLeases() *Leases {
	return &Leases{}
}

// Acquire takes the lease for a session. The returned release function
// must be called exactly once
func (l *Leases) Acquire(id api.SessionID) (func(), error) {
	if _, loaded := l.held.LoadOrStore(id, struct{}{}); loaded {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.held.Delete(id) })
	}, nil
}

// Held reports whether a session is currently leased
func (l *Leases) Held(id api.SessionID) bool {
	_, ok := l.held.Load(id)
	return ok
}
