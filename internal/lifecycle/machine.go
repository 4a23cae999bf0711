// Package lifecycle applies status transitions through a single conditional
// write, so concurrent requests racing on the same row cannot both win.
package lifecycle

import (
	"fmt"
	"sort"
)

// Machine declares which source states may move into each target state.
// States never used as a source are terminal.
type Machine[S ~string] struct {
	entity  string
	sources map[S][]S
	states  map[S]struct{}
	movable map[S]struct{}
}

// NewMachine builds a machine for entity from target -> allowed sources.
func NewMachine[S ~string](entity string, edges map[S][]S) *Machine[S] {
	m := &Machine[S]{
		entity:  entity,
		sources: make(map[S][]S, len(edges)),
		states:  make(map[S]struct{}),
		movable: make(map[S]struct{}),
	}
	for to, from := range edges {
		m.states[to] = struct{}{}
		cp := append([]S(nil), from...)
		sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
		m.sources[to] = cp
		for _, s := range from {
			m.states[s] = struct{}{}
			m.movable[s] = struct{}{}
		}
	}
	return m
}

// Entity names the machine in error messages, e.g. "listing".
func (m *Machine[S]) Entity() string {
	return m.entity
}

// Sources returns the states allowed to move into to, nil when to is not a
// reachable target.
func (m *Machine[S]) Sources(to S) []S {
	return append([]S(nil), m.sources[to]...)
}

// CanTransition reports whether from -> to is a declared edge.
func (m *Machine[S]) CanTransition(from, to S) bool {
	for _, s := range m.sources[to] {
		if s == from {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (m *Machine[S]) IsTerminal(s S) bool {
	_, known := m.states[s]
	_, movable := m.movable[s]
	return known && !movable
}

// Valid reports whether s is a state of this machine.
func (m *Machine[S]) Valid(s S) bool {
	_, ok := m.states[s]
	return ok
}

// restrict narrows the allowed sources for to by an explicit subset.
func (m *Machine[S]) restrict(to S, from []S) ([]S, error) {
	allowed := m.sources[to]
	if len(allowed) == 0 {
		return nil, fmt.Errorf("lifecycle: %s has no transition into %s", m.entity, to)
	}
	if len(from) == 0 {
		return append([]S(nil), allowed...), nil
	}
	out := make([]S, 0, len(from))
	for _, s := range from {
		if !m.CanTransition(s, to) {
			return nil, fmt.Errorf("lifecycle: %s cannot move %s -> %s", m.entity, s, to)
		}
		out = append(out, s)
	}
	return out, nil
}
