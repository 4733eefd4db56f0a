// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fsm

import "sync/atomic"

// DebounceWidth is the number of consecutive samples that must agree.
// At a 5 ms tick this is a 30 ms settle time.
const DebounceWidth = 6

// Edge is the outcome of a debounced sample
type Edge int

const (
	EdgeNone Edge = iota
	EdgeOn
	EdgeOff
)

// Debouncer is a shift-register filter for one sense input. The tick side
// (a timer goroutine) calls Tick; the control loop calls Sample.
type Debouncer struct {
	width    uint
	mask     uint8
	register uint8
	samples  uint
	tick     atomic.Bool

	// EdgeOnly reports each stable level once instead of on every tick
	EdgeOnly bool
	last     Edge
}

// NewDebouncer creates a debouncer of the given width (1..8)
func NewDebouncer(width uint) *Debouncer {
	if width < 1 {
		width = 1
	}
	if width > 8 {
		width = 8
	}
	return &Debouncer{
		width: width,
		mask:  uint8((uint16(1) << width) - 1),
	}
}

// Tick marks that a new sample period has elapsed
func (d *Debouncer) Tick() {
	d.tick.Store(true)
}

// Sample takes one reading if a tick is pending. It returns EdgeOn once the
// last width samples were all asserted and EdgeOff once they were all
// released.
func (d *Debouncer) Sample(asserted bool) Edge {
	if !d.tick.CompareAndSwap(true, false) {
		return EdgeNone
	}
	d.register <<= 1
	if asserted {
		d.register |= 1
	}
	if d.samples < d.width {
		// The register has not been filled since startup
		d.samples++
		if d.samples < d.width {
			return EdgeNone
		}
	}

	edge := EdgeNone
	switch d.register & d.mask {
	case d.mask:
		edge = EdgeOn
	case 0:
		edge = EdgeOff
	}
	if edge == EdgeNone {
		return EdgeNone
	}
	if d.EdgeOnly {
		if edge == d.last {
			return EdgeNone
		}
		d.last = edge
	}
	return edge
}

// Register returns the raw shift register
func (d *Debouncer) Register() uint8 { return d.register }

// Sense couples a debouncer with the events it produces
type Sense struct {
	*Debouncer
	On  Event
	Off Event
}

// NewSense creates a default-width sense producing on/off
func NewSense(on, off Event) *Sense {
	return &Sense{Debouncer: NewDebouncer(DebounceWidth), On: on, Off: off}
}

// Poll samples the input and pushes the resulting event into q
func (s *Sense) Poll(asserted bool, q *EventQueue) {
	switch s.Sample(asserted) {
	case EdgeOn:
		q.Push(s.On)
	case EdgeOff:
		q.Push(s.Off)
	}
}
