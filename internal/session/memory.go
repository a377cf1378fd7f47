package session

import (
	"context"
	"sync"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// MemoryStore keeps session state in process memory
	MemoryStore struct {
		entries map[api.SessionID]*memoryEntry
		mu      sync.Mutex
		closed  bool
	}

	memoryEntry struct {
		state *api.WorkflowState
		mu    sync.RWMutex
	}
)

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-process Store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[api.SessionID]*memoryEntry{},
	}
}

func (s *MemoryStore) Get(
	_ context.Context, id api.SessionID,
) (*api.WorkflowState, bool, error) {
	e, err := s.entry(id, false)
	if err != nil || e == nil {
		return nil, false, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return nil, false, nil
	}
	return e.state.Clone(), true, nil
}

func (s *MemoryStore) Set(
	_ context.Context, id api.SessionID, st *api.WorkflowState,
) error {
	e, err := s.entry(id, true)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = st.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id api.SessionID) error {
	if id == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.entries, id)
	return nil
}

// Len returns the number of stored sessions
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = map[api.SessionID]*memoryEntry{}
	return nil
}

// entry finds the per-key slot, creating it when asked. The store-wide
// mutex is only held for the map access, never across state copies
func (s *MemoryStore) entry(
	id api.SessionID, create bool,
) (*memoryEntry, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	e, ok := s.entries[id]
	if !ok && create {
		e = &memoryEntry{}
		s.entries[id] = e
	}
	return e, nil
}
