package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// Builder accumulates stages and transitions and compiles them into a Graph
type Builder struct {
	nodes     map[api.StageID]Node
	edges     map[api.StageID]*transition
	terminals map[api.StageID]bool
	entry     api.StageID
	errs      []error
}

var (
	ErrNoEntry          = errors.New("graph has no entry stage")
	ErrNilNode          = errors.New("stage has nil node")
	ErrDuplicateStage   = errors.New("stage registered twice")
	ErrDuplicateRoute   = errors.New("stage routed twice")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrEmptyBranch      = errors.New("branch declares no targets")
	ErrMissingRoute     = errors.New("non-terminal stage lacks routing")
	ErrTerminalRouted   = errors.New("terminal stage has routing")
	ErrUnreachableStage = errors.New("stage unreachable from entry")
	ErrNoExit           = errors.New("stage cannot reach an exit")
)

// NewBuilder returns an empty Builder
func NewBuilder() *Builder {
	return &Builder{
		nodes:     map[api.StageID]Node{},
		edges:     map[api.StageID]*transition{},
		terminals: map[api.StageID]bool{},
	}
}

// Stage registers the node executed for a stage
func (b *Builder) Stage(id api.StageID, node Node) *Builder {
	switch {
	case node == nil:
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrNilNode, id))
	case b.nodes[id] != nil:
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateStage, id))
	default:
		b.nodes[id] = node
	}
	return b
}

// Entry sets the stage new traversals start from
func (b *Builder) Entry(id api.StageID) *Builder {
	b.entry = id
	return b
}

// Terminal marks stages that end the traversal once executed
func (b *Builder) Terminal(ids ...api.StageID) *Builder {
	for _, id := range ids {
		b.terminals[id] = true
	}
	return b
}

// Edge adds an unconditional transition between two stages
func (b *Builder) Edge(from, to api.StageID) *Builder {
	target := To(to)
	return b.addTransition(from, &transition{
		route:   func(*api.WorkflowState) Target { return target },
		targets: []Target{target},
	})
}

// Finish routes a stage unconditionally to End
func (b *Builder) Finish(from api.StageID) *Builder {
	return b.addTransition(from, &transition{
		route:   func(*api.WorkflowState) Target { return End },
		targets: []Target{End},
	})
}

// Branch adds a conditional transition. Every Target the route may
// return must be declared so the graph can be checked before use
func (b *Builder) Branch(
	from api.StageID, route Route, targets ...Target,
) *Builder {
	if len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrEmptyBranch, from))
		return b
	}
	return b.addTransition(from, &transition{
		route:   route,
		targets: slices.Clone(targets),
	})
}

func (b *Builder) addTransition(from api.StageID, tr *transition) *Builder {
	if _, ok := b.edges[from]; ok {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateRoute, from))
		return b
	}
	b.edges[from] = tr
	return b
}

// Build validates the accumulated definition and returns an immutable
// Graph. All problems found are joined into the returned error
func (b *Builder) Build() (*Graph, error) {
	errs := slices.Clone(b.errs)
	errs = append(errs, b.checkReferences()...)
	if len(errs) == 0 {
		errs = append(errs, b.checkReachability()...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &Graph{
		nodes:     make(map[api.StageID]Node, len(b.nodes)),
		edges:     make(map[api.StageID]*transition, len(b.edges)),
		terminals: make(map[api.StageID]bool, len(b.terminals)),
		entry:     b.entry,
	}
	for id, n := range b.nodes {
		g.nodes[id] = n
	}
	for id, tr := range b.edges {
		g.edges[id] = &transition{
			route:   tr.route,
			targets: slices.Clone(tr.targets),
		}
	}
	for id := range b.terminals {
		g.terminals[id] = true
	}
	return g, nil
}

func (b *Builder) checkReferences() []error {
	var errs []error
	if b.entry == "" {
		errs = append(errs, ErrNoEntry)
	} else if !b.known(b.entry) {
		errs = append(errs, fmt.Errorf("%w: entry %s", ErrUnknownStage, b.entry))
	}

	for _, id := range sortedKeys(b.terminals) {
		if !b.known(id) {
			errs = append(errs,
				fmt.Errorf("%w: terminal %s", ErrUnknownStage, id))
		}
		if _, ok := b.edges[id]; ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrTerminalRouted, id))
		}
	}

	for _, from := range sortedKeys(b.edges) {
		if !b.known(from) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownStage, from))
		}
		for _, t := range b.edges[from].targets {
			if !t.IsEnd() && !b.known(t.Stage()) {
				errs = append(errs, fmt.Errorf("%w: %s -> %s",
					ErrUnknownStage, from, t.Stage()))
			}
		}
	}

	for _, id := range sortedKeys(b.nodes) {
		_, routed := b.edges[id]
		if !routed && !b.terminals[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingRoute, id))
		}
	}
	return errs
}

func (b *Builder) checkReachability() []error {
	reached := map[api.StageID]bool{b.entry: true}
	queue := []api.StageID{b.entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range b.successors(id) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	exits := b.exits()

	var errs []error
	for _, id := range sortedKeys(b.nodes) {
		if !reached[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnreachableStage, id))
			continue
		}
		if !exits[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoExit, id))
		}
	}
	return errs
}

// exits returns the set of stages from which a terminal stage or End is
// reachable, computed as a fixed point over the declared targets
func (b *Builder) exits() map[api.StageID]bool {
	res := map[api.StageID]bool{}
	for id := range b.terminals {
		res[id] = true
	}
	for changed := true; changed; {
		changed = false
		for from, tr := range b.edges {
			if res[from] {
				continue
			}
			for _, t := range tr.targets {
				if t.IsEnd() || res[t.Stage()] {
					res[from] = true
					changed = true
					break
				}
			}
		}
	}
	return res
}

func (b *Builder) successors(id api.StageID) []api.StageID {
	tr, ok := b.edges[id]
	if !ok {
		return nil
	}
	var res []api.StageID
	for _, t := range tr.targets {
		if !t.IsEnd() {
			res = append(res, t.Stage())
		}
	}
	return res
}

func (b *Builder) known(id api.StageID) bool {
	_, ok := b.nodes[id]
	return ok
}

func sortedKeys[V any](m map[api.StageID]V) []api.StageID {
	res := make([]api.StageID, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}
