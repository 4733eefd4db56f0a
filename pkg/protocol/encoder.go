// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"io"
)

// Encode builds the wire form of a frame: START, id, payload, STOP
func Encode(id CommandID, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+ControlSize)
	frame = append(frame, StartByte, byte(id))
	frame = append(frame, payload...)
	return append(frame, StopByte)
}

// EncodeString is Encode for a string payload
func EncodeString(id CommandID, payload string) []byte {
	return Encode(id, []byte(payload))
}

// ValidatePayload reports bytes that cannot travel inside a frame
func ValidatePayload(payload []byte) error {
	for i, b := range payload {
		if b == StartByte || b == StopByte || b == NoopByte {
			return fmt.Errorf("payload byte %d is reserved control byte 0x%02X", i, b)
		}
	}
	if len(payload) > MaxPayload {
		return fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayload)
	}
	return nil
}

// WriteFrame validates and writes one frame to w
func WriteFrame(w io.Writer, id CommandID, payload []byte) error {
	if !id.Valid() {
		return fmt.Errorf("invalid command id 0x%02X", byte(id))
	}
	if err := ValidatePayload(payload); err != nil {
		return err
	}
	if _, err := w.Write(Encode(id, payload)); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", id, err)
	}
	return nil
}
