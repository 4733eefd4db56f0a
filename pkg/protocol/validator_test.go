// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"strings"
	"testing"
)

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame(t *testing.T) {
	goodStats := Stats{AccelX: 120, AccelY: 130, AccelZ: 140, Current: 300, Voltage: 12800, Gear: 3}.Encode()
	badGear := goodStats[:27] + "7"
	fix := GPSFix{Fix: 3, Satellites: 9}
	badFix := GPSFix{Fix: 5}

	tests := []struct {
		name    string
		id      CommandID
		payload string
		want    []AnomalyType
	}{
		{"state", CmdState, EncodeState(testDateTime, 0x0082), nil},
		{"state short", CmdState, EncodeState(testDateTime, 2)[:30], []AnomalyType{ANOMALY_LENGTH_MISMATCH}},
		{"state bad bits", CmdState, EncodeState(testDateTime, 2)[:16] + "0000000x.00000010", []AnomalyType{ANOMALY_NON_NUMERIC}},
		{"state bad month", CmdState, "3071324090504012" + "00000000.00000010", []AnomalyType{ANOMALY_INVALID_TIMESTAMP}},
		{"stats poll", CmdStats, "", nil},
		{"stats reply", CmdStats, goodStats, nil},
		{"stats short", CmdStats, goodStats[:20], []AnomalyType{ANOMALY_LENGTH_MISMATCH}},
		{"stats gear", CmdStats, badGear, []AnomalyType{ANOMALY_INVALID_VALUE}},
		{"stats accel full scale", CmdStats, "999" + goodStats[3:], nil},
		{"stats voltage", CmdStats, goodStats[:13] + "20000" + goodStats[18:], []AnomalyType{ANOMALY_INVALID_VALUE}},
		{"data", CmdData, EncodeData(testDateTime, goodStats), nil},
		{"data short", CmdData, EncodeData(testDateTime, goodStats[:10]), []AnomalyType{ANOMALY_LENGTH_MISMATCH}},
		{"gps", CmdGPS, EncodeGPS(testDateTime, &fix), nil},
		{"gps no fix", CmdGPS, EncodeGPS(testDateTime, nil), nil},
		{"gps bad fix", CmdGPS, EncodeGPS(testDateTime, &badFix), []AnomalyType{ANOMALY_INVALID_VALUE}},
		{"gps garbage", CmdGPS, testDateTime.Timestamp() + "a,b", []AnomalyType{ANOMALY_NON_NUMERIC}},
		{"gps short", CmdGPS, "123", []AnomalyType{ANOMALY_LENGTH_MISMATCH}},
		{"sound beep", CmdSound, "253", nil},
		{"sound song", CmdSound, "004", nil},
		{"sound unknown", CmdSound, "100", []AnomalyType{ANOMALY_UNKNOWN_SOUND}},
		{"sound text", CmdSound, "abc", []AnomalyType{ANOMALY_NON_NUMERIC}},
		{"sound long", CmdSound, "2530", []AnomalyType{ANOMALY_LENGTH_MISMATCH}},
		{"sense", CmdSense, "00129", nil},
		{"sense text", CmdSense, "x", []AnomalyType{ANOMALY_NON_NUMERIC}},
		{"msg", CmdMsg, "anything", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateFrame(NewFrame(tt.id, []byte(tt.payload)))
			if len(errs) != len(tt.want) {
				t.Fatalf("Expected %d validation errors, got %d: %v", len(tt.want), len(errs), errs)
			}
			for i, e := range errs {
				if e.Type != tt.want[i] {
					t.Errorf("Error %d: expected %s, got %s (%s)", i, tt.want[i], e.Type, e.Message)
				}
			}
		})
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	good := NewFrame(CmdSound, []byte("253"))
	s.Update(good, nil, ValidateFrame(good))

	bad := NewFrame(CmdSound, []byte("100"))
	s.Update(bad, nil, ValidateFrame(bad))

	short := NewFrame(CmdStats, []byte("12"))
	s.Update(short, nil, ValidateFrame(short))

	s.Update(nil, fmt.Errorf("wrapped: %w", ErrRestart), nil)
	s.Update(nil, ErrOverflow, nil)
	s.Update(nil, ErrUnknownCommand, nil)

	if s.TotalFrames != 6 {
		t.Errorf("TotalFrames = %d, want 6", s.TotalFrames)
	}
	if s.ValidFrames != 1 {
		t.Errorf("ValidFrames = %d, want 1", s.ValidFrames)
	}
	if s.DecodeErrors != 3 || s.Restarts != 1 || s.Overflows != 1 || s.UnknownIDs != 1 {
		t.Errorf("decode counters = %d/%d/%d/%d", s.DecodeErrors, s.Restarts, s.Overflows, s.UnknownIDs)
	}
	if s.AnomalousValues != 1 || s.MalformedFrames != 1 || s.LengthMismatch != 1 {
		t.Errorf("validation counters anomalous=%d malformed=%d length=%d", s.AnomalousValues, s.MalformedFrames, s.LengthMismatch)
	}
	if s.PerCommand[CmdSound] != 2 || s.PerCommand[CmdStats] != 1 {
		t.Errorf("per command = %v", s.PerCommand)
	}

	out := s.String()
	for _, want := range []string{"Total Frames:", "Restarts:", "SOUND", "Length Mismatch:"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}

	s.Reset()
	if s.TotalFrames != 0 || len(s.PerCommand) != 0 {
		t.Error("Reset did not clear counters")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  []string
	}{
		{"state", NewFrame(CmdState, []byte(EncodeState(testDateTime, 0x0005))), []string{"STATE", "0x0005", "2024-02-07 09:05:04.012"}},
		{"sound", NewFrame(CmdSound, []byte("254")), []string{"SOUND", "OFF"}},
		{"stats", NewFrame(CmdStats, []byte(Stats{RPM: 3000, Gear: 2}.Encode())), []string{"RPM=3000", "Gear=2"}},
		{"gps", NewFrame(CmdGPS, []byte(EncodeGPS(testDateTime, &GPSFix{Fix: 2, Latitude: 523456789}))), []string{"Fix=2", "Lat=52.3456789"}},
		{"msg", NewFrame(CmdMsg, []byte("hello")), []string{`"hello"`}},
		{"hex", NewFrame(CmdSettings, []byte{0x10, 0x7F}), []string{"10 7F"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatFrame(tt.frame)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("FormatFrame missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestFormatSound(t *testing.T) {
	tests := map[uint8]string{
		0:           "ALARM",
		3:           "SONG_3",
		100:         "UNKNOWN",
		SoundBeep:   "BEEP",
		SoundOff:    "OFF",
		SoundRandom: "RANDOM_SONG",
	}
	for code, want := range tests {
		if got := FormatSound(code); got != want {
			t.Errorf("FormatSound(%d) = %q, want %q", code, got, want)
		}
	}
}
