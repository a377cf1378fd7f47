package helpers

import (
	"sync"
	"time"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// Observer records engine measurements for assertions
type Observer struct {
	stages   map[string]int
	sessions map[api.SessionStatus]int
	resumes  map[string]int
	mu       sync.Mutex
}

// NewObserver creates an empty Observer
func NewObserver() *Observer {
	return &Observer{
		stages:   map[string]int{},
		sessions: map[api.SessionStatus]int{},
		resumes:  map[string]int{},
	}
}

func (o *Observer) ObserveStage(
	stage api.StageID, _ time.Duration, outcome string,
) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages[string(stage)+"/"+outcome]++
}

func (o *Observer) ObserveSession(status api.SessionStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[status]++
}

func (o *Observer) ObserveResume(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resumes[outcome]++
}

// Stage returns how often a stage finished with the given outcome
func (o *Observer) Stage(stage api.StageID, outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stages[string(stage)+"/"+outcome]
}

// Session returns how often a traversal ended in the given status
func (o *Observer) Session(status api.SessionStatus) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[status]
}

// Resume returns how often a resume finished with the given outcome
func (o *Observer) Resume(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resumes[outcome]
}
