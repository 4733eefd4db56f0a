// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (%c) len=%d\n", timestamp, f.ID(), byte(f.ID()), len(f.Payload()))

	if len(f.Payload()) > 0 {
		result += FormatPayload(f.ID(), f.Payload())
	}
	return result
}

// FormatSound names a sound code
func FormatSound(code uint8) string {
	switch {
	case code == SoundBeep:
		return "BEEP"
	case code == SoundOff:
		return "OFF"
	case code == SoundRandom:
		return "RANDOM_SONG"
	case code == 0:
		return "ALARM"
	case code < SongCount:
		return fmt.Sprintf("SONG_%d", code)
	default:
		return "UNKNOWN"
	}
}

// FormatDateTime renders a decoded timestamp
func FormatDateTime(d DateTime) string {
	return fmt.Sprintf("20%02d-%02d-%02d %02d:%02d:%02d.%03d (day %d)",
		d.Year, d.Month, d.Day, d.Hours, d.Minutes, d.Seconds, d.Milliseconds, d.Weekday)
}

// FormatStats renders decoded telemetry
func FormatStats(s Stats) string {
	return fmt.Sprintf("Accel=(%d,%d,%d), Current=%d mA, Voltage=%d mV, Temp=%d, RPM=%d, Gear=%d",
		s.AccelX, s.AccelY, s.AccelZ, s.Current, s.Voltage, s.Temperature, s.RPM, s.Gear)
}

// FormatPayload formats the payload based on command
func FormatPayload(id CommandID, payload []byte) string {
	text := string(payload)

	switch id {
	case CmdState:
		if ts, word, err := DecodeState(text); err == nil {
			return fmt.Sprintf("  Time: %s\n  State: 0x%04X (%08b.%08b)\n",
				FormatDateTime(ts), word, uint8(word>>8), uint8(word))
		}

	case CmdStats:
		if st, err := ParseStats(text); err == nil {
			return "  " + FormatStats(st) + "\n"
		}

	case CmdData:
		if ts, st, err := DecodeData(text); err == nil {
			return fmt.Sprintf("  Time: %s\n  %s\n", FormatDateTime(ts), FormatStats(st))
		}

	case CmdGPS:
		if ts, fix, err := DecodeGPS(text); err == nil {
			if fix == nil {
				return fmt.Sprintf("  Time: %s\n  No fix\n", FormatDateTime(ts))
			}
			return fmt.Sprintf("  Time: %s\n  Fix=%d, SV=%d, Lat=%.7f, Lon=%.7f, Alt=%.2f m, Vel=(%d,%d,%d) cm/s\n",
				FormatDateTime(ts), fix.Fix, fix.Satellites,
				float64(fix.Latitude)/1e7, float64(fix.Longitude)/1e7, float64(fix.Altitude)/100,
				fix.VelX, fix.VelY, fix.VelZ)
		}

	case CmdSound:
		if code, err := DecodeSound(text); err == nil {
			return fmt.Sprintf("  Sound: %s (%d)\n", FormatSound(code), code)
		}

	case CmdSense:
		if word, err := DecodeSense(text); err == nil {
			return fmt.Sprintf("  Dynamic senses: 0x%04X\n", word)
		}

	case CmdMsg, CmdLog:
		if isPrintable(payload) {
			return fmt.Sprintf("  %q\n", text)
		}
	}

	// Default: hex dump
	var b strings.Builder
	b.WriteString("  Payload: ")
	for i, c := range payload {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n           ")
		}
		fmt.Fprintf(&b, "%02X ", c)
	}
	b.WriteString("\n")
	return b.String()
}

func isPrintable(p []byte) bool {
	for _, c := range p {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
