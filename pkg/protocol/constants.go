// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package protocol implements the tandem command link: start/stop framed
// ASCII commands exchanged between the body and engine controllers and with
// external clients.
//
// A frame on the wire is
//
//	START  ID  PAYLOAD...  STOP
//
// where ID is one lowercase letter and PAYLOAD is zero or more ASCII bytes.
// There is no escaping; a START inside a frame abandons it and begins a new
// one.
package protocol

import "strings"

// Control bytes
const (
	StartByte = 0x01
	StopByte  = 0x02
	NoopByte  = 0x03 // Link idle filler, never valid payload
)

// Size limits
const (
	ControlSize   = 3   // START + ID + STOP
	ScratchSize   = 125 // Parser buffer, including the ID byte and terminator
	MaxPayload    = ScratchSize - 2
	TimestampSize = 17  // 16 characters plus the terminator the firmware budgets
	StatsLength   = 28
	StateLength   = 16 + 17 // timestamp + "hhhhhhhh.llllllll"
	GPSMaxLength  = 75
)

// MaxVoltage is the battery reading at ADC full scale, in mV
const MaxVoltage = 16040

// CommandID is a single-letter command identifier
type CommandID byte

// Command identifiers
const (
	CmdState    CommandID = 'a'
	CmdStats    CommandID = 'b'
	CmdData     CommandID = 'c'
	CmdGPS      CommandID = 'd'
	CmdRTC      CommandID = 'e'
	CmdSense    CommandID = 'f'
	CmdSettings CommandID = 'g'
	CmdLog      CommandID = 'h'
	CmdReboot   CommandID = 'i'
	CmdPincode  CommandID = 'j'
	CmdSound    CommandID = 'k'
	CmdMsg      CommandID = 'l'
)

// AllCommands lists every identifier in wire order
var AllCommands = []CommandID{
	CmdState, CmdStats, CmdData, CmdGPS, CmdRTC, CmdSense,
	CmdSettings, CmdLog, CmdReboot, CmdPincode, CmdSound, CmdMsg,
}

// Sound codes understood by the engine buzzer. Codes below SongCount
// select a song directly; song 0 is the alarm.
const (
	SongCount   = 6
	SoundBeep   = 253
	SoundOff    = 254
	SoundRandom = 255
)

// Interface selects where a trigger is emitted
type Interface int

const (
	IfLink     Interface = iota // Shared link between the controllers
	IfExternal                  // External client transport
	IfDebug                     // Trace output
)

// String returns the interface name
func (i Interface) String() string {
	switch i {
	case IfLink:
		return "link"
	case IfExternal:
		return "external"
	case IfDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Valid reports whether id is one of the known command identifiers
func (id CommandID) Valid() bool {
	return id >= CmdState && id <= CmdMsg
}

// String returns the command name
func (id CommandID) String() string {
	switch id {
	case CmdState:
		return "STATE"
	case CmdStats:
		return "STATS"
	case CmdData:
		return "DATA"
	case CmdGPS:
		return "GPS"
	case CmdRTC:
		return "RTC"
	case CmdSense:
		return "SENSE"
	case CmdSettings:
		return "SETTINGS"
	case CmdLog:
		return "LOG"
	case CmdReboot:
		return "REBOOT"
	case CmdPincode:
		return "PINCODE"
	case CmdSound:
		return "SOUND"
	case CmdMsg:
		return "MSG"
	default:
		return "UNKNOWN"
	}
}

// ParseCommandName maps a command name (case-insensitive) or its letter
// back to the identifier
func ParseCommandName(name string) (CommandID, bool) {
	if len(name) == 1 {
		id := CommandID(name[0])
		return id, id.Valid()
	}
	for _, id := range AllCommands {
		if strings.EqualFold(id.String(), name) {
			return id, true
		}
	}
	return 0, false
}
