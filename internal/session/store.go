// Package session provides durable per-session storage of workflow state
//
// Every Store serializes writes per session key and never blocks callers
// working on different sessions. Leases give the engine exclusive use of a
// session for the duration of one traversal
package session

import (
	"context"
	"errors"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// Store holds one WorkflowState snapshot per session with last-writer-wins
// semantics
type Store interface {
	Get(ctx context.Context, id api.SessionID) (*api.WorkflowState, bool, error)
	Set(ctx context.Context, id api.SessionID, st *api.WorkflowState) error
	Delete(ctx context.Context, id api.SessionID) error
	Close() error
}

var (
	ErrSessionBusy  = errors.New("session busy")
	ErrEmptyID      = errors.New("session id is empty")
	ErrDecodeState  = errors.New("failed to decode session state")
	ErrEncodeState  = errors.New("failed to encode session state")
	ErrStoreClosed  = errors.New("session store closed")
	ErrMigrate      = errors.New("failed to migrate session schema")
	ErrConnectStore = errors.New("failed to connect session store")
)
