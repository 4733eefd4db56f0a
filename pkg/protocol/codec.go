// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

//////////////////////////////////////////////////////////////
// Timestamps
//////////////////////////////////////////////////////////////

// DateTime is the clock reading stamped on outgoing frames
type DateTime struct {
	Weekday      uint8 // 1 (Monday) - 7 (Sunday)
	Day          uint8
	Month        uint8
	Year         uint8 // years since 2000
	Hours        uint8
	Minutes      uint8
	Seconds      uint8
	Milliseconds uint16
}

// DateTimeFrom converts a time.Time
func DateTimeFrom(t time.Time) DateTime {
	wd := uint8(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return DateTime{
		Weekday:      wd,
		Day:          uint8(t.Day()),
		Month:        uint8(t.Month()),
		Year:         uint8(t.Year() % 100),
		Hours:        uint8(t.Hour()),
		Minutes:      uint8(t.Minute()),
		Seconds:      uint8(t.Second()),
		Milliseconds: uint16(t.Nanosecond() / int(time.Millisecond)),
	}
}

// Time converts back to a time.Time in loc (weekday is ignored)
func (d DateTime) Time(loc *time.Location) time.Time {
	return time.Date(2000+int(d.Year), time.Month(d.Month), int(d.Day),
		int(d.Hours), int(d.Minutes), int(d.Seconds), int(d.Milliseconds)*int(time.Millisecond), loc)
}

// Timestamp renders the 16-character form Dddmmyyhhmmssmmm
func (d DateTime) Timestamp() string {
	return fmt.Sprintf("%01d%02d%02d%02d%02d%02d%02d%03d",
		d.Weekday%10, d.Day%100, d.Month%100, d.Year%100,
		d.Hours%100, d.Minutes%100, d.Seconds%100, d.Milliseconds%1000)
}

// ParseTimestamp parses the 16-character timestamp at the start of s
func ParseTimestamp(s string) (DateTime, error) {
	if len(s) < 16 {
		return DateTime{}, fmt.Errorf("timestamp too short: %d chars (need 16)", len(s))
	}
	fields := []struct {
		from, to int
	}{{0, 1}, {1, 3}, {3, 5}, {5, 7}, {7, 9}, {9, 11}, {11, 13}, {13, 16}}
	var v [8]int
	for i, f := range fields {
		n, err := parseDigits(s[f.from:f.to])
		if err != nil {
			return DateTime{}, fmt.Errorf("timestamp field %d: %w", i, err)
		}
		v[i] = n
	}
	return DateTime{
		Weekday:      uint8(v[0]),
		Day:          uint8(v[1]),
		Month:        uint8(v[2]),
		Year:         uint8(v[3]),
		Hours:        uint8(v[4]),
		Minutes:      uint8(v[5]),
		Seconds:      uint8(v[6]),
		Milliseconds: uint16(v[7]),
	}, nil
}

func parseDigits(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("non-digit %q in %q", s[i], s)
		}
	}
	return strconv.Atoi(s)
}

//////////////////////////////////////////////////////////////
// State
//////////////////////////////////////////////////////////////

// EncodeState builds a state payload: timestamp, high byte and low byte
// of the state word as binary digits separated by a dot
func EncodeState(ts DateTime, word uint16) string {
	return ts.Timestamp() + fmt.Sprintf("%08b.%08b", uint8(word>>8), uint8(word))
}

// DecodeState parses a state payload back into its timestamp and word
func DecodeState(payload string) (DateTime, uint16, error) {
	if len(payload) != StateLength {
		return DateTime{}, 0, fmt.Errorf("state payload length %d (expected %d)", len(payload), StateLength)
	}
	ts, err := ParseTimestamp(payload)
	if err != nil {
		return DateTime{}, 0, err
	}
	bits := payload[16:]
	if bits[8] != '.' {
		return DateTime{}, 0, fmt.Errorf("state payload missing byte separator")
	}
	high, err := strconv.ParseUint(bits[:8], 2, 8)
	if err != nil {
		return DateTime{}, 0, fmt.Errorf("state high byte: %w", err)
	}
	low, err := strconv.ParseUint(bits[9:], 2, 8)
	if err != nil {
		return DateTime{}, 0, fmt.Errorf("state low byte: %w", err)
	}
	return ts, uint16(high)<<8 | uint16(low), nil
}

//////////////////////////////////////////////////////////////
// Stats
//////////////////////////////////////////////////////////////

// Stats is the engine telemetry snapshot
type Stats struct {
	AccelX      uint16 // raw ADC
	AccelY      uint16
	AccelZ      uint16
	Current     uint16 // mA
	Voltage     uint32 // mV (5 digits on the wire)
	Temperature uint16 // 49 * ADC, hundredths of a degree on the receiver
	RPM         uint32
	Gear        uint8
}

// statsLayout is the digit width of each field, in wire order
var statsLayout = []int{3, 3, 3, 4, 5, 4, 5, 1}

func clampDigits(v uint64, width int) uint64 {
	max := uint64(1)
	for i := 0; i < width; i++ {
		max *= 10
	}
	if v >= max {
		return max - 1
	}
	return v
}

// Encode renders the 28-character form xxxyyyzzzCCCCVVVVVTTTTRRRRRG.
// Values too large for their field are clamped to all nines.
func (s Stats) Encode() string {
	values := []uint64{
		uint64(s.AccelX), uint64(s.AccelY), uint64(s.AccelZ),
		uint64(s.Current), uint64(s.Voltage), uint64(s.Temperature),
		uint64(s.RPM), uint64(s.Gear),
	}
	var b strings.Builder
	b.Grow(StatsLength)
	for i, v := range values {
		w := statsLayout[i]
		fmt.Fprintf(&b, "%0*d", w, clampDigits(v, w))
	}
	return b.String()
}

// ParseStats parses the 28-character stats form at the start of s
func ParseStats(s string) (Stats, error) {
	if len(s) < StatsLength {
		return Stats{}, fmt.Errorf("stats payload length %d (expected %d)", len(s), StatsLength)
	}
	var v [8]uint64
	off := 0
	for i, w := range statsLayout {
		n, err := parseDigits(s[off : off+w])
		if err != nil {
			return Stats{}, fmt.Errorf("stats field %d: %w", i, err)
		}
		v[i] = uint64(n)
		off += w
	}
	return Stats{
		AccelX:      uint16(v[0]),
		AccelY:      uint16(v[1]),
		AccelZ:      uint16(v[2]),
		Current:     uint16(v[3]),
		Voltage:     uint32(v[4]),
		Temperature: uint16(v[5]),
		RPM:         uint32(v[6]),
		Gear:        uint8(v[7]),
	}, nil
}

// EncodeData builds a data payload: timestamp followed by the stats
func EncodeData(ts DateTime, stats string) string {
	return ts.Timestamp() + stats
}

// DecodeData parses a data payload
func DecodeData(payload string) (DateTime, Stats, error) {
	ts, err := ParseTimestamp(payload)
	if err != nil {
		return DateTime{}, Stats{}, err
	}
	st, err := ParseStats(payload[16:])
	if err != nil {
		return DateTime{}, Stats{}, err
	}
	return ts, st, nil
}

//////////////////////////////////////////////////////////////
// GPS
//////////////////////////////////////////////////////////////

// GPSFix is the latest position report from the GPS receiver
type GPSFix struct {
	Fix        uint8 // 0 none, 1 2D, 2 3D, 3 3D+DGPS
	Satellites uint8
	Latitude   int32 // 1e-7 degrees
	Longitude  int32
	Altitude   uint32 // cm above sea level
	VelX       int32  // ECEF cm/s
	VelY       int32
	VelZ       int32
}

// String renders the comma separated form carried after the timestamp
func (g GPSFix) String() string {
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d",
		g.Fix, g.Satellites, g.Latitude, g.Longitude, g.Altitude, g.VelX, g.VelY, g.VelZ)
}

// ParseGPSFix parses the comma separated form
func ParseGPSFix(s string) (GPSFix, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 8 {
		return GPSFix{}, fmt.Errorf("gps fix has %d fields (expected 8)", len(parts))
	}
	var n [8]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return GPSFix{}, fmt.Errorf("gps field %d: %w", i, err)
		}
		n[i] = v
	}
	return GPSFix{
		Fix:        uint8(n[0]),
		Satellites: uint8(n[1]),
		Latitude:   int32(n[2]),
		Longitude:  int32(n[3]),
		Altitude:   uint32(n[4]),
		VelX:       int32(n[5]),
		VelY:       int32(n[6]),
		VelZ:       int32(n[7]),
	}, nil
}

// EncodeGPS builds a gps payload. fix is omitted when nil (no valid
// receiver message yet).
func EncodeGPS(ts DateTime, fix *GPSFix) string {
	if fix == nil {
		return ts.Timestamp()
	}
	s := ts.Timestamp() + fix.String()
	if len(s) > 16+GPSMaxLength {
		s = s[:16+GPSMaxLength]
	}
	return s
}

// DecodeGPS parses a gps payload; fix is nil when only a timestamp was sent
func DecodeGPS(payload string) (DateTime, *GPSFix, error) {
	ts, err := ParseTimestamp(payload)
	if err != nil {
		return DateTime{}, nil, err
	}
	if len(payload) == 16 {
		return ts, nil, nil
	}
	fix, err := ParseGPSFix(payload[16:])
	if err != nil {
		return ts, nil, err
	}
	return ts, &fix, nil
}

//////////////////////////////////////////////////////////////
// Sound
//////////////////////////////////////////////////////////////

// EncodeSound renders a sound code as three zero-padded digits
func EncodeSound(code uint8) string {
	return fmt.Sprintf("%03d", code)
}

// DecodeSound parses the three-digit sound code
func DecodeSound(payload string) (uint8, error) {
	if len(payload) < 3 {
		return 0, fmt.Errorf("sound payload length %d (expected 3)", len(payload))
	}
	n, err := parseDigits(payload[:3])
	if err != nil {
		return 0, fmt.Errorf("sound code: %w", err)
	}
	if n > 255 {
		return 0, fmt.Errorf("sound code %d out of range", n)
	}
	return uint8(n), nil
}

// EncodeSense renders the dynamic sense word carried by a sense command
func EncodeSense(word uint16) string {
	return fmt.Sprintf("%05d", word)
}

// DecodeSense parses a sense command payload
func DecodeSense(payload string) (uint16, error) {
	n, err := strconv.ParseUint(payload, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("sense word: %w", err)
	}
	return uint16(n), nil
}
