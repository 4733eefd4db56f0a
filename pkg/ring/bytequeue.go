// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ring

// ByteQueueSlots is the slot count of a ByteQueue: a full 8-bit index space
const ByteQueueSlots = 256

// ByteQueue is a framing-unaware byte ring. Each direction of each
// transport owns one.
type ByteQueue struct {
	*Ring
}

// NewByteQueue creates an empty ByteQueue (usable capacity 255)
func NewByteQueue() *ByteQueue {
	return &ByteQueue{Ring: New(ByteQueueSlots)}
}

// Write pushes every byte of p. It never fails; overflow drops the oldest
// bytes. It implements io.Writer so encoders can target a queue directly.
func (q *ByteQueue) Write(p []byte) (int, error) {
	for _, b := range p {
		q.Push(b)
	}
	return len(p), nil
}

// PopOr returns the oldest byte, or fallback when the queue is empty
func (q *ByteQueue) PopOr(fallback byte) byte {
	if b, ok := q.Pop(); ok {
		return b
	}
	return fallback
}

// Snapshot returns the waiting bytes without consuming them.
// Only meaningful when no peer is running.
func (q *ByteQueue) Snapshot() []byte {
	n := q.Len()
	out := make([]byte, 0, n)
	t := q.tail.Load()
	for i := 0; i < n; i++ {
		out = append(out, uint8(q.slots[(t+uint32(i))%q.size].Load()))
	}
	return out
}
