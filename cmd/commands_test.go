// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// ============================================================
// Argument Parsing Tests
// ============================================================

func TestParseSound(t *testing.T) {
	tests := []struct {
		in      string
		want    uint8
		wantErr bool
	}{
		{in: "beep", want: protocol.SoundBeep},
		{in: "OFF", want: protocol.SoundOff},
		{in: "random", want: protocol.SoundRandom},
		{in: "alarm", want: 0},
		{in: "song3", want: 3},
		{in: " 4 ", want: 4},
		{in: "253", want: protocol.SoundBeep},
		{in: "6", wantErr: true},
		{in: "252", wantErr: true},
		{in: "300", wantErr: true},
		{in: "horn", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSound(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSenseWord(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "none", want: 0},
		{in: "17", want: 17},
		{in: "0x11", want: 0x11},
		{in: "brake", want: config.SenseBrake},
		{in: "brake, ign", want: config.SenseBrake | config.SenseIgn},
		{in: "ri,li,warning", want: config.SenseRI | config.SenseLI | config.SenseWarning},
		{in: "horn", wantErr: true},
		{in: "brake,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSenseWord(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGate(t *testing.T) {
	g, err := parseGate("Legacy")
	require.NoError(t, err)
	assert.Equal(t, protocol.GateLegacy, g)

	g, err = parseGate("uniform")
	require.NoError(t, err)
	assert.Equal(t, protocol.GateUniform, g)

	_, err = parseGate("sometimes")
	assert.Error(t, err)
}

// ============================================================
// Frame Building Tests
// ============================================================

func TestBuildFrame(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []byte
	}{
		{"stats", []string{"stats"}, protocol.NewStatsPoll()},
		{"poll alias", []string{"poll"}, protocol.NewStatsPoll()},
		{"sound", []string{"sound", "beep"}, protocol.NewSoundCommand(protocol.SoundBeep)},
		{"sense names", []string{"sense", "light,ign"}, protocol.NewSenseCommand(config.SenseLight | config.SenseIgn)},
		{"sense clear", []string{"sense", "none"}, protocol.NewSenseCommand(0)},
		{"msg", []string{"msg", "hello", "there"}, protocol.NewMsgCommand("hello there")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildFrame(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildFrame_Errors(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"reboot"},
		{"msg"},
		{"sound", "9"},
		{"sense", "horn"},
	} {
		_, err := buildFrame(args)
		assert.Error(t, err, "%v", args)
	}
}

// ============================================================
// Reconnect Tests
// ============================================================

func TestNextBackoff(t *testing.T) {
	d := reconnectMin
	var seen []time.Duration
	for i := 0; i < 7; i++ {
		d = nextBackoff(d)
		seen = append(seen, d)
	}
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		reconnectMax, reconnectMax, reconnectMax,
	}, seen)
}
