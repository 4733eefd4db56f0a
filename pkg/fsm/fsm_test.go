// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test vocabulary
// ============================================================

const (
	evOn Event = iota + 2
	evOff
	evShared
)

const (
	stSleep StateWord = 1 << iota
	stActive
	stLamp
	stFirst
	stSecond
)

func lampTable() Table {
	return Table{
		{
			Event:  evOn,
			Name:   "lamp_on",
			Guard:  func(s StateWord) bool { return s.None(stLamp | stSleep) },
			Action: func(m *Machine) { m.Set(stLamp) },
		},
		{
			Event:  evOff,
			Name:   "lamp_off",
			Guard:  func(s StateWord) bool { return s.Has(stLamp) },
			Action: func(m *Machine) { m.Clear(stLamp) },
		},
		{
			Event:  evShared,
			Name:   "first",
			Guard:  func(s StateWord) bool { return s.Has(stActive) },
			Action: func(m *Machine) { m.Set(stFirst) },
		},
		{
			Event:  evShared,
			Name:   "second",
			Guard:  Always,
			Action: func(m *Machine) { m.Set(stSecond) },
		},
	}
}

// ============================================================
// EventQueue Tests
// ============================================================

func TestEventQueue_NextOnEmptyIsVoid(t *testing.T) {
	q := NewEventQueue()
	assert.Equal(t, EventVoid, q.Next())
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestEventQueue_OverflowKeepsNewest(t *testing.T) {
	q := NewEventQueue()
	c := q.Cap()
	require.Equal(t, EventQueueSlots-1, c)

	total := c + 40
	for i := 0; i < total; i++ {
		q.Push(Event(2 + i%200))
	}
	require.Equal(t, c, q.Len())
	assert.Equal(t, uint64(40), q.Dropped())

	for i := total - c; i < total; i++ {
		assert.Equal(t, Event(2+i%200), q.Next())
	}
	assert.Equal(t, EventVoid, q.Next())
}

// ============================================================
// StateWord Tests
// ============================================================

func TestStateWord_Predicates(t *testing.T) {
	s := stActive | stLamp
	assert.True(t, s.Has(stActive))
	assert.True(t, s.Has(stActive|stLamp))
	assert.False(t, s.Has(stActive|stSleep))
	assert.True(t, s.Any(stSleep|stLamp))
	assert.True(t, s.None(stSleep))
	assert.True(t, s.Within(stActive|stLamp|stSleep))
	assert.False(t, s.Within(stSleep))
}

func TestStateWord_String(t *testing.T) {
	assert.Equal(t, "00000000.00000101", StateWord(0x0005).String())
	assert.Equal(t, "00001000.00000010", StateWord(0x0802).String())
}

// ============================================================
// Machine Tests
// ============================================================

func TestMachine_GuardAcceptsAndPublishes(t *testing.T) {
	var published []StateWord
	m := NewMachine("test", lampTable(), func(s StateWord) { published = append(published, s) })
	m.Replace(stActive)
	published = nil

	m.Push(evOn)
	ran := m.Dispatch()

	assert.Equal(t, 1, ran)
	assert.Equal(t, stActive|stLamp, m.State())
	assert.Equal(t, []StateWord{stActive | stLamp}, published)
}

func TestMachine_GuardRejectsLeavesStateUntouched(t *testing.T) {
	published := 0
	m := NewMachine("test", lampTable(), func(StateWord) { published++ })
	m.Replace(stSleep)
	published = 0

	m.Push(evOn)
	m.Push(evOff)
	ran := m.Dispatch()

	assert.Equal(t, 0, ran)
	assert.Equal(t, stSleep, m.State())
	assert.Equal(t, 0, published)
	dispatched, rejected := m.Stats()
	assert.Equal(t, uint64(0), dispatched)
	assert.Equal(t, uint64(2), rejected)
}

func TestMachine_TableOrderIsTieBreak(t *testing.T) {
	tests := []struct {
		name     string
		initial  StateWord
		expected StateWord
	}{
		{"first entry wins when its guard accepts", stActive, stActive | stFirst},
		{"falls through to later entry", stSleep, stSleep | stSecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine("test", lampTable(), nil)
			m.Replace(tt.initial)
			m.Push(evShared)
			require.Equal(t, 1, m.Dispatch())
			assert.Equal(t, tt.expected, m.State())
		})
	}
}

func TestMachine_DrainsInArrivalOrder(t *testing.T) {
	m := NewMachine("test", lampTable(), nil)
	m.Replace(stActive)

	// on, off, on: the lamp ends on only if the events ran in order
	m.Push(evOn)
	m.Push(evOff)
	m.Push(evOn)
	assert.Equal(t, 3, m.Dispatch())
	assert.True(t, m.Has(stLamp))
	assert.Equal(t, 0, m.Queue().Len())
}

func TestMachine_OneActionPerEvent(t *testing.T) {
	count := 0
	table := Table{
		{Event: evOn, Guard: Always, Action: func(*Machine) { count++ }},
		{Event: evOn, Guard: Always, Action: func(*Machine) { count += 100 }},
	}
	m := NewMachine("test", table, nil)
	m.Push(evOn)
	m.Push(evOn)
	m.Dispatch()
	assert.Equal(t, 2, count)
}

func TestMachine_NilGuardAccepts(t *testing.T) {
	m := NewMachine("test", Table{{Event: evOn, Action: func(m *Machine) { m.Set(stLamp) }}}, nil)
	assert.True(t, m.Fire(evOn))
	assert.True(t, m.Has(stLamp))
}

// ============================================================
// Debouncer Tests
// ============================================================

func sampleAll(d *Debouncer, levels []bool) []Edge {
	var edges []Edge
	for _, l := range levels {
		d.Tick()
		if e := d.Sample(l); e != EdgeNone {
			edges = append(edges, e)
		}
	}
	return edges
}

func TestDebouncer_NoTickNoSample(t *testing.T) {
	d := NewDebouncer(DebounceWidth)
	for i := 0; i < 20; i++ {
		assert.Equal(t, EdgeNone, d.Sample(true))
	}
	assert.Equal(t, uint8(0), d.Register())
}

func TestDebouncer_AlternatingNeverFires(t *testing.T) {
	d := NewDebouncer(DebounceWidth)
	levels := make([]bool, 100)
	for i := range levels {
		levels[i] = i%2 == 0
	}
	assert.Empty(t, sampleAll(d, levels))
}

func TestDebouncer_BounceShorterThanWidth(t *testing.T) {
	d := NewDebouncer(DebounceWidth)
	d.EdgeOnly = true
	// Bursts of 5 asserted samples separated by a single release
	var levels []bool
	for i := 0; i < 10; i++ {
		levels = append(levels, true, true, true, true, true, false)
	}
	assert.Empty(t, sampleAll(d, levels))
}

func TestDebouncer_StableFiresExactlyOnceWithEdgeOnly(t *testing.T) {
	d := NewDebouncer(DebounceWidth)
	d.EdgeOnly = true

	levels := make([]bool, 30)
	for i := range levels {
		levels[i] = true
	}
	assert.Equal(t, []Edge{EdgeOn}, sampleAll(d, levels))

	released := make([]bool, 30)
	assert.Equal(t, []Edge{EdgeOff}, sampleAll(d, released))
}

func TestDebouncer_StableRepeatsWithoutEdgeOnly(t *testing.T) {
	d := NewDebouncer(DebounceWidth)
	levels := make([]bool, DebounceWidth+3)
	for i := range levels {
		levels[i] = true
	}
	edges := sampleAll(d, levels)
	require.Len(t, edges, 4)
	for _, e := range edges {
		assert.Equal(t, EdgeOn, e)
	}
}

func TestDebouncer_WidthFiveSamplesIsNotEnough(t *testing.T) {
	d := NewDebouncer(DebounceWidth)
	levels := make([]bool, DebounceWidth-1)
	for i := range levels {
		levels[i] = true
	}
	assert.Empty(t, sampleAll(d, levels))
}

func TestSense_PollPushesEvents(t *testing.T) {
	q := NewEventQueue()
	s := NewSense(evOn, evOff)
	s.EdgeOnly = true
	for i := 0; i < DebounceWidth; i++ {
		s.Tick()
		s.Poll(true, q)
	}
	for i := 0; i < DebounceWidth; i++ {
		s.Tick()
		s.Poll(false, q)
	}
	assert.Equal(t, evOn, q.Next())
	assert.Equal(t, evOff, q.Next())
	assert.Equal(t, EventVoid, q.Next())
}
