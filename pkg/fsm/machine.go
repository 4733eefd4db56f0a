// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fsm

import (
	"github.com/golang/glog"
)

// Guard decides whether the current state accepts an event. Guards must
// not mutate state.
type Guard func(s StateWord) bool

// Action performs a transition. It mutates state through the Machine.
type Action func(m *Machine)

// Transition is one (event, guard, action) entry
type Transition struct {
	Event  Event
	Name   string
	Guard  Guard
	Action Action
}

// Table is an ordered transition list. For entries sharing an event the
// first one whose guard accepts wins.
type Table []Transition

// Always is a guard that accepts every state
func Always(StateWord) bool { return true }

// PublishFunc is called after every state mutation with the new word
type PublishFunc func(s StateWord)

// Machine is a controller FSM: a table, the event queue feeding it, and
// the state word it guards.
type Machine struct {
	name    string
	table   Table
	queue   *EventQueue
	state   StateWord
	publish PublishFunc

	dispatched uint64
	rejected   uint64
}

// NewMachine builds a machine over table. publish may be nil.
func NewMachine(name string, table Table, publish PublishFunc) *Machine {
	return &Machine{
		name:    name,
		table:   table,
		queue:   NewEventQueue(),
		publish: publish,
	}
}

// SetPublisher replaces the state publish hook
func (m *Machine) SetPublisher(publish PublishFunc) {
	m.publish = publish
}

// Name returns the machine name used in logs
func (m *Machine) Name() string { return m.name }

// Queue returns the machine's event queue
func (m *Machine) Queue() *EventQueue { return m.queue }

// Push queues an event for the next Dispatch
func (m *Machine) Push(ev Event) {
	m.queue.Push(ev)
}

// State returns the current state word
func (m *Machine) State() StateWord { return m.state }

// Has reports whether every bit of mask is set in the current state
func (m *Machine) Has(mask StateWord) bool { return m.state.Has(mask) }

// Replace sets the state word to s and publishes it
func (m *Machine) Replace(s StateWord) {
	m.state = s
	m.notify()
}

// Set sets the bits of mask and publishes the state
func (m *Machine) Set(mask StateWord) {
	m.state |= mask
	m.notify()
}

// Clear clears the bits of mask and publishes the state
func (m *Machine) Clear(mask StateWord) {
	m.state &^= mask
	m.notify()
}

func (m *Machine) notify() {
	if glog.V(2) {
		glog.Infof("%s: state %s", m.name, m.state)
	}
	if m.publish != nil {
		m.publish(m.state)
	}
}

// Dispatch drains the event queue. Each event runs the first matching
// entry whose guard accepts; scanning then moves on to the next event.
// Returns the number of actions run.
func (m *Machine) Dispatch() int {
	ran := 0
	for {
		ev := m.queue.Next()
		if ev == EventVoid {
			return ran
		}
		if m.Fire(ev) {
			ran++
		}
	}
}

// Fire runs the first accepting entry for ev immediately, bypassing the
// queue. Reports whether an action ran.
func (m *Machine) Fire(ev Event) bool {
	for i := range m.table {
		tr := &m.table[i]
		if tr.Event != ev {
			continue
		}
		guard := tr.Guard
		if guard == nil {
			guard = Always
		}
		if !guard(m.state) {
			continue
		}
		if glog.V(2) {
			glog.Infof("%s: event %d -> %s", m.name, ev, tr.Name)
		}
		if tr.Action != nil {
			tr.Action(m)
		}
		m.dispatched++
		return true
	}
	m.rejected++
	return false
}

// Stats returns how many events ran an action and how many were rejected
func (m *Machine) Stats() (dispatched, rejected uint64) {
	return m.dispatched, m.rejected
}
