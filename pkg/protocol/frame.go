// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import "time"

// Frame is a decoded command frame
type Frame struct {
	id        CommandID
	payload   []byte
	timestamp time.Time
}

// NewFrame creates a frame with the given identifier and payload
func NewFrame(id CommandID, payload []byte) *Frame {
	return &Frame{
		id:        id,
		payload:   payload,
		timestamp: time.Now(),
	}
}

// ID returns the command identifier
func (f *Frame) ID() CommandID {
	return f.id
}

// Payload returns the payload bytes, excluding the identifier
func (f *Frame) Payload() []byte {
	return f.payload
}

// Text returns the payload as a string
func (f *Frame) Text() string {
	return string(f.payload)
}

// Raw returns the identifier followed by the payload, the layout external
// relays forward
func (f *Frame) Raw() []byte {
	raw := make([]byte, 0, len(f.payload)+1)
	raw = append(raw, byte(f.id))
	return append(raw, f.payload...)
}

// Bytes returns the wire encoding of the frame
func (f *Frame) Bytes() []byte {
	return Encode(f.id, f.payload)
}

// WireSize returns the encoded length including control bytes
func (f *Frame) WireSize() int {
	return len(f.payload) + ControlSize
}

// Timestamp returns the decode time
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
