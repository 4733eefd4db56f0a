// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package relay carries the frames Engine passes to its clients beyond
// the client transport: a WebSocket hub, an MQTT publisher and a Redis
// publisher, fed through a Fanout.
package relay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// ErrUnsupported is returned for frames that carry no telemetry
var ErrUnsupported = errors.New("frame carries no telemetry")

// Snapshot is one decoded telemetry frame. It is CBOR encoded with
// integer keys for sinks.
type Snapshot struct {
	Command  string             `cbor:"1,keyasint"`
	Received time.Time          `cbor:"2,keyasint"`
	Stamp    *protocol.DateTime `cbor:"3,keyasint,omitempty"`
	State    *uint16            `cbor:"4,keyasint,omitempty"`
	Flags    string             `cbor:"5,keyasint,omitempty"`
	Stats    *protocol.Stats    `cbor:"6,keyasint,omitempty"`
	GPS      *protocol.GPSFix   `cbor:"7,keyasint,omitempty"`
}

// FromFrame decodes a state, data, gps or stats frame
func FromFrame(f *protocol.Frame) (Snapshot, error) {
	s := Snapshot{
		Command:  strings.ToLower(f.ID().String()),
		Received: f.Timestamp(),
	}
	text := f.Text()

	switch f.ID() {
	case protocol.CmdState:
		ts, word, err := protocol.DecodeState(text)
		if err != nil {
			return s, fmt.Errorf("state frame: %w", err)
		}
		s.Stamp = &ts
		s.State = &word
		s.Flags = body.StateString(fsm.StateWord(word))
	case protocol.CmdData:
		ts, st, err := protocol.DecodeData(text)
		if err != nil {
			return s, fmt.Errorf("data frame: %w", err)
		}
		s.Stamp = &ts
		s.Stats = &st
	case protocol.CmdStats:
		st, err := protocol.ParseStats(text)
		if err != nil {
			return s, fmt.Errorf("stats frame: %w", err)
		}
		s.Stats = &st
	case protocol.CmdGPS:
		ts, fix, err := protocol.DecodeGPS(text)
		if err != nil {
			return s, fmt.Errorf("gps frame: %w", err)
		}
		s.Stamp = &ts
		s.GPS = fix
	default:
		return s, fmt.Errorf("%s: %w", f.ID(), ErrUnsupported)
	}
	return s, nil
}

// Encode returns the CBOR form
func (s Snapshot) Encode() ([]byte, error) {
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses the CBOR form
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// Fields flattens the snapshot into hash fields. Only the fields present
// in this frame are returned so a hash accumulates the latest of each.
func (s Snapshot) Fields() map[string]any {
	f := map[string]any{
		s.Command + ":received": s.Received.UnixMilli(),
	}
	if s.Stamp != nil {
		f[s.Command+":stamp"] = s.Stamp.Timestamp()
	}
	if s.State != nil {
		f["state"] = *s.State
		f["state:flags"] = s.Flags
	}
	if st := s.Stats; st != nil {
		f["accel:x"] = st.AccelX
		f["accel:y"] = st.AccelY
		f["accel:z"] = st.AccelZ
		f["current"] = st.Current
		f["voltage"] = st.Voltage
		f["temperature"] = st.Temperature
		f["rpm"] = st.RPM
		f["gear"] = st.Gear
	}
	if g := s.GPS; g != nil {
		f["gps:fix"] = g.Fix
		f["gps:satellites"] = g.Satellites
		f["gps:latitude"] = g.Latitude
		f["gps:longitude"] = g.Longitude
		f["gps:altitude"] = g.Altitude
	}
	return f
}
