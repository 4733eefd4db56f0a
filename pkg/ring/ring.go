// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ring provides the fixed-size circular buffers shared between a
// control loop and its interrupt-side peer.
package ring

import "sync/atomic"

// Ring is a single-producer, single-consumer circular buffer of small values.
//
// head == tail means empty, so a ring with n slots holds at most n-1 values.
// Pushing into a full ring discards the oldest value. The producer always
// writes the slot before publishing head, and advances tail before
// publishing head when it has to drop, so the consumer never sees a full
// ring as empty and never reads a slot that is still being written.
type Ring struct {
	slots   []atomic.Uint32
	size    uint32
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint64
}

// New creates a ring with the given number of slots (at least 2)
func New(slots int) *Ring {
	if slots < 2 {
		slots = 2
	}
	return &Ring{
		slots: make([]atomic.Uint32, slots),
		size:  uint32(slots),
	}
}

// Push inserts v, overwriting the oldest value when the ring is full.
// Must only be called from the producer side.
func (r *Ring) Push(v uint8) {
	h := r.head.Load()
	r.slots[h].Store(uint32(v))
	next := (h + 1) % r.size
	for {
		t := r.tail.Load()
		if next != t {
			break
		}
		// Full: drop the oldest value. The consumer may race us here, in
		// which case the CAS fails and the ring is no longer full.
		if r.tail.CompareAndSwap(t, (t+1)%r.size) {
			r.dropped.Add(1)
			break
		}
	}
	r.head.Store(next)
}

// Pop removes and returns the oldest value.
// Must only be called from the consumer side.
func (r *Ring) Pop() (uint8, bool) {
	for {
		t := r.tail.Load()
		if t == r.head.Load() {
			return 0, false
		}
		v := r.slots[t].Load()
		if r.tail.CompareAndSwap(t, (t+1)%r.size) {
			return uint8(v), true
		}
	}
}

// Peek returns the oldest value without removing it
func (r *Ring) Peek() (uint8, bool) {
	t := r.tail.Load()
	if t == r.head.Load() {
		return 0, false
	}
	return uint8(r.slots[t].Load()), true
}

// Len returns the number of values waiting
func (r *Ring) Len() int {
	h := r.head.Load()
	t := r.tail.Load()
	return int((h + r.size - t) % r.size)
}

// Cap returns the usable capacity (slots - 1)
func (r *Ring) Cap() int {
	return int(r.size) - 1
}

// Free returns Cap() - Len()
func (r *Ring) Free() int {
	return r.Cap() - r.Len()
}

// Empty reports whether no values are waiting
func (r *Ring) Empty() bool {
	return r.head.Load() == r.tail.Load()
}

// Dropped returns how many values were discarded by overflow
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Reset empties the ring. Not safe while a peer is active.
func (r *Ring) Reset() {
	r.head.Store(0)
	r.tail.Store(0)
	r.dropped.Store(0)
}
