package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc gates a transition on runtime context
type GuardFunc func(ctx context.Context) bool

type edge struct {
	to    State
	guard GuardFunc
}

// TransitionGraph is a reusable description of permitted transitions.
// Configure edges once, then mint independent Machine values from it.
type TransitionGraph struct {
	edges map[State]map[Trigger][]edge
}

// NewTransitionGraph creates an empty graph
func NewTransitionGraph() *TransitionGraph {
	return &TransitionGraph{edges: make(map[State]map[Trigger][]edge)}
}

// From returns the edge set for a source state. Panics on invalid
// states: graph construction errors are programmer errors.
func (g *TransitionGraph) From(state State) *EdgeSet {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if g.edges[state] == nil {
		g.edges[state] = make(map[Trigger][]edge)
	}
	return &EdgeSet{graph: g, from: state}
}

// Machine mints a machine positioned at initial. Machines copy the
// graph's edges, so later graph edits never leak into live machines.
func (g *TransitionGraph) Machine(initial State) *Machine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}

	edges := make(map[State]map[Trigger][]edge, len(g.edges))
	for from, triggers := range g.edges {
		copied := make(map[Trigger][]edge, len(triggers))
		for trigger, es := range triggers {
			copied[trigger] = append([]edge(nil), es...)
		}
		edges[from] = copied
	}
	return &Machine{state: initial, edges: edges}
}

// EdgeSet adds outgoing transitions for one source state
type EdgeSet struct {
	graph *TransitionGraph
	from  State
}

// Permit allows trigger to move to the target state
func (s *EdgeSet) Permit(trigger Trigger, to State) *EdgeSet {
	return s.PermitIf(trigger, to, nil)
}

// PermitIf allows trigger to move to the target state when guard passes
func (s *EdgeSet) PermitIf(trigger Trigger, to State, guard GuardFunc) *EdgeSet {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	s.graph.edges[s.from][trigger] = append(s.graph.edges[s.from][trigger], edge{to: to, guard: guard})
	return s
}

// Machine tracks a current state and fires permitted triggers
type Machine struct {
	state State
	edges map[State]map[Trigger][]edge
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// CanFire reports whether the trigger has at least one edge out of the
// current state.
func (m *Machine) CanFire(trigger Trigger) bool {
	return len(m.edges[m.state][trigger]) > 0
}

// Fire follows the first edge for trigger whose guard passes
func (m *Machine) Fire(ctx context.Context, trigger Trigger) error {
	es := m.edges[m.state][trigger]
	if len(es) == 0 {
		return fmt.Errorf("%w: trigger %s from state %s", ErrInvalidTransition, trigger, m.state)
	}

	for _, e := range es {
		if e.guard == nil || e.guard(ctx) {
			m.state = e.to
			return nil
		}
	}
	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.state)
}

// PermittedTriggers returns the triggers with outgoing edges from the
// current state, sorted for stable output.
func (m *Machine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.edges[m.state]))
	for t := range m.edges[m.state] {
		triggers = append(triggers, t)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
