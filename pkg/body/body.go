// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package body implements the Body controller: lights, indicators, brake,
// claxon, alarm and ignition. Body clocks the shared link, owns the state
// word and stamps outgoing frames with its real-time clock.
package body

import (
	"strings"
	"time"

	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Events
const (
	EvRIOn       fsm.Event = 2
	EvLIOn       fsm.Event = 3
	EvRIOff      fsm.Event = 4
	EvLIOff      fsm.Event = 5
	EvClaxonOn   fsm.Event = 6
	EvClaxonOff  fsm.Event = 7
	EvBrakeOn    fsm.Event = 8
	EvBrakeOff   fsm.Event = 9
	EvPilotOn    fsm.Event = 10
	EvPilotOff   fsm.Event = 11
	EvLightOn    fsm.Event = 12
	EvLightOff   fsm.Event = 13
	EvAlarmOn    fsm.Event = 14
	EvAlarmOff   fsm.Event = 15
	EvIgnOn      fsm.Event = 16
	EvIgnOff     fsm.Event = 17
	EvWarningOn  fsm.Event = 18
	EvWarningOff fsm.Event = 19
	EvNeutralOn  fsm.Event = 20
	EvNeutralOff fsm.Event = 21
)

// State bits
const (
	StSleep    fsm.StateWord = 1 << 0 // power-on default until ignition
	StActive   fsm.StateWord = 1 << 1
	StAlarm    fsm.StateWord = 1 << 2
	StNeutral  fsm.StateWord = 1 << 3
	StRI       fsm.StateWord = 1 << 4
	StLI       fsm.StateWord = 1 << 5
	StClaxon   fsm.StateWord = 1 << 6
	StBrake    fsm.StateWord = 1 << 7
	StLight    fsm.StateWord = 1 << 8
	StWarning  fsm.StateWord = 1 << 9
	StPilot    fsm.StateWord = 1 << 10
	StAlarmSet fsm.StateWord = 1 << 11
)

var stateNames = []struct {
	bit  fsm.StateWord
	name string
}{
	{StSleep, "SLEEP"},
	{StActive, "ACTIVE"},
	{StAlarm, "ALARM"},
	{StNeutral, "NEUTRAL"},
	{StRI, "RI"},
	{StLI, "LI"},
	{StClaxon, "CLAXON"},
	{StBrake, "BRAKE"},
	{StLight, "LIGHT"},
	{StWarning, "WARNING"},
	{StPilot, "PILOT"},
	{StAlarmSet, "ALARM_SET"},
}

// StateString names the set bits of a Body state word, e.g. "ACTIVE|BRAKE"
func StateString(s fsm.StateWord) string {
	var parts []string
	for _, n := range stateNames {
		if s.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// StateBitNames returns every state bit name in bit order
func StateBitNames() []string {
	names := make([]string, len(stateNames))
	for i, n := range stateNames {
		names[i] = n.name
	}
	return names
}

//////////////////////////////////////////////////////////////
// Hardware
//////////////////////////////////////////////////////////////

// Relay is one switched output
type Relay int

const (
	RelayBrake Relay = iota
	RelayClaxon
	RelayPilot
	RelayLight
	RelayRIFront
	RelayRIRear
	RelayLIFront
	RelayLIRear
	RelayIndicatorCockpit
	RelayStatusCockpit
	RelayCount
)

var relayNames = [RelayCount]string{
	"brake", "claxon", "pilot", "light",
	"ri_front", "ri_rear", "li_front", "li_rear",
	"indicator_cockpit", "status_cockpit",
}

// String returns the relay name
func (r Relay) String() string {
	if r < 0 || r >= RelayCount {
		return "unknown"
	}
	return relayNames[r]
}

// SenseInputs reads the sense pins. sense is one of the config.Sense*
// flags; the result is true while the input is asserted (pin pulled low).
type SenseInputs interface {
	Asserted(sense uint16) bool
}

// Relays drives the outputs
type Relays interface {
	Set(r Relay, on bool)
}

// Clock is the real-time clock. It has one second resolution; the
// controller derives milliseconds itself.
type Clock interface {
	Now() protocol.DateTime
}

// GPSSource supplies the latest position fix, nil while there is none
type GPSSource interface {
	Fix() *protocol.GPSFix
}

// SettingsStore persists settings
type SettingsStore interface {
	Settings() config.Settings
	Update(fn func(*config.Settings)) error
}

// SystemClock reads the host clock truncated to the second
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() protocol.DateTime {
	d := protocol.DateTimeFrom(time.Now())
	d.Milliseconds = 0
	return d
}

type noSenses struct{}

func (noSenses) Asserted(uint16) bool { return false }

type noRelays struct{}

func (noRelays) Set(Relay, bool) {}

// Sense table in poll priority order. Ignition is polled last so a key
// turn is handled after every other input of the same loop.
type senseDef struct {
	flag    uint16
	on, off fsm.Event
}

var (
	senseBrake   = senseDef{config.SenseBrake, EvBrakeOn, EvBrakeOff}
	senseClaxon  = senseDef{config.SenseClaxon, EvClaxonOn, EvClaxonOff}
	senseLight   = senseDef{config.SenseLight, EvLightOn, EvLightOff}
	senseRI      = senseDef{config.SenseRI, EvRIOn, EvRIOff}
	senseLI      = senseDef{config.SenseLI, EvLIOn, EvLIOff}
	senseWarning = senseDef{config.SenseWarning, EvWarningOn, EvWarningOff}
	sensePilot   = senseDef{config.SensePilot, EvPilotOn, EvPilotOff}
	senseAlarm   = senseDef{config.SenseAlarm, EvAlarmOn, EvAlarmOff}
	senseIgn     = senseDef{config.SenseIgn, EvIgnOn, EvIgnOff}
)

// SenseNames maps the names used by tooling to sense flags
var SenseNames = map[string]uint16{
	"brake":   config.SenseBrake,
	"claxon":  config.SenseClaxon,
	"pilot":   config.SensePilot,
	"light":   config.SenseLight,
	"ign":     config.SenseIgn,
	"ri":      config.SenseRI,
	"li":      config.SenseLI,
	"warning": config.SenseWarning,
	"alarm":   config.SenseAlarm,
}
