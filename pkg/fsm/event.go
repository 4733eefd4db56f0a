// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fsm

import "github.com/Thermoquad/tandem/pkg/ring"

// Event is a controller-local event tag. It carries no payload.
type Event uint8

// Reserved events shared by every controller vocabulary
const (
	EventVoid Event = 0 // Empty-queue sentinel, never dispatched
	EventAny  Event = 1
)

// EventQueueSlots matches the firmware event buffer (127 usable entries)
const EventQueueSlots = 128

// EventQueue is the FIFO between the sense/poll routines and the dispatch
// loop. Pushing into a full queue drops the oldest pending event.
type EventQueue struct {
	r *ring.Ring
}

// NewEventQueue creates an empty event queue
func NewEventQueue() *EventQueue {
	return &EventQueue{r: ring.New(EventQueueSlots)}
}

// Push queues ev. It never blocks and never fails.
func (q *EventQueue) Push(ev Event) {
	q.r.Push(uint8(ev))
}

// Pop returns the oldest pending event
func (q *EventQueue) Pop() (Event, bool) {
	v, ok := q.r.Pop()
	return Event(v), ok
}

// Next returns the oldest pending event, or EventVoid when empty
func (q *EventQueue) Next() Event {
	if ev, ok := q.Pop(); ok {
		return ev
	}
	return EventVoid
}

// Len returns the number of pending events
func (q *EventQueue) Len() int { return q.r.Len() }

// Cap returns the usable capacity
func (q *EventQueue) Cap() int { return q.r.Cap() }

// Dropped returns how many events were lost to overflow
func (q *EventQueue) Dropped() uint64 { return q.r.Dropped() }
