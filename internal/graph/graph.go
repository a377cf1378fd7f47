package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

type (
	// Node executes one stage, returning the update to merge into state
	Node func(
		context.Context, *api.WorkflowState, *collab.Collaborators,
	) (*api.PartialUpdate, error)

	// Route chooses the next Target from the current state. Routes must be
	// pure functions of their argument
	Route func(*api.WorkflowState) Target

	// Target is the outcome of routing: a stage to run next, or End
	Target struct {
		stage api.StageID
		end   bool
	}

	// Graph is a compiled, read-only set of stages and transitions
	Graph struct {
		nodes     map[api.StageID]Node
		edges     map[api.StageID]*transition
		terminals map[api.StageID]bool
		entry     api.StageID
	}

	transition struct {
		route   Route
		targets []Target
	}
)

// End is the terminal sentinel returned by routes that finish a traversal
var End = Target{end: true}

var (
	ErrFatal            = errors.New("fatal stage error")
	ErrNoRoute          = errors.New("stage has no outgoing route")
	ErrUndeclaredTarget = errors.New("route returned undeclared target")
)

// To returns a Target naming the given stage
func To(id api.StageID) Target {
	return Target{stage: id}
}

// IsEnd reports whether the target is the terminal sentinel
func (t Target) IsEnd() bool {
	return t.end
}

// Stage returns the target stage, or an empty ID for End
func (t Target) Stage() api.StageID {
	return t.stage
}

func (t Target) String() string {
	if t.end {
		return "<end>"
	}
	return string(t.stage)
}

// Fatal marks a stage error as fatal, halting the traversal
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err was marked with Fatal
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// Entry returns the stage every new traversal starts from
func (g *Graph) Entry() api.StageID {
	return g.entry
}

// Node returns the node registered for a stage
func (g *Graph) Node(id api.StageID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Has reports whether the stage is part of the graph
func (g *Graph) Has(id api.StageID) bool {
	_, ok := g.nodes[id]
	return ok
}

// IsTerminal reports whether the stage ends a traversal once executed
func (g *Graph) IsTerminal(id api.StageID) bool {
	return g.terminals[id]
}

// Stages returns every stage ID in sorted order
func (g *Graph) Stages() []api.StageID {
	res := make([]api.StageID, 0, len(g.nodes))
	for id := range g.nodes {
		res = append(res, id)
	}
	slices.Sort(res)
	return res
}

// Next evaluates the routing of a stage against the current state
func (g *Graph) Next(from api.StageID, st *api.WorkflowState) (Target, error) {
	tr, ok := g.edges[from]
	if !ok {
		return End, fmt.Errorf("%w: %s", ErrNoRoute, from)
	}
	res := tr.route(st)
	if !slices.Contains(tr.targets, res) {
		return End, fmt.Errorf("%w: %s -> %s", ErrUndeclaredTarget, from, res)
	}
	return res, nil
}
