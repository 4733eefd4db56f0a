// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Load / Save Tests
// ============================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), cfg.Settings)
	assert.Equal(t, "/ws", cfg.Relay.WebSocket.Path)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.yaml")
	data := []byte(`
settings:
  system_name: easyrider
  power_cycles: 41
  startup_sound: 3
relay:
  mqtt:
    broker: tcp://localhost:1883
    qos: 1
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(41), cfg.Settings.PowerCycles)
	assert.Equal(t, uint8(3), cfg.Settings.StartupSound)
	assert.Equal(t, uint16(9765), cfg.Settings.BlinkSpeed)
	assert.Equal(t, "tcp://localhost:1883", cfg.Relay.MQTT.Broker)
	assert.Equal(t, "tandem", cfg.Relay.MQTT.TopicPrefix)
}

func TestLoad_ForeignSystemNameResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.yaml")
	data := []byte(`
settings:
  system_name: other
  power_cycles: 99
  pincode: "12"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), cfg.Settings)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.yaml")
	cfg := Default()
	cfg.Settings.PowerCycles = 7
	cfg.Settings.DSensesMask = SenseBrake | SenseIgn
	cfg.Relay.Redis.Addr = "localhost:6379"

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "senses:", "empty line maps are not written")
}

func TestSaveLoadRoundTrip_GPIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.yaml")
	cfg := Default()
	cfg.GPIO = GPIOConfig{
		Chip:   "gpiochip0",
		Senses: map[string]int{"brake": 4, "ign": 5},
		Relays: map[string]int{"light": 6},
		Gears:  []int{10, 11, 12, 13},
	}

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

// ============================================================
// Validation Tests
// ============================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"short pincode", func(c *Config) { c.Settings.Pincode = "123" }, false},
		{"alpha pincode", func(c *Config) { c.Settings.Pincode = "12a4" }, false},
		{"long system name", func(c *Config) { c.Settings.SystemName = "easyrider2" }, false},
		{"long hw version", func(c *Config) { c.Settings.HWVersion = "revision C" }, false},
		{"zero blink speed", func(c *Config) { c.Settings.BlinkSpeed = 0 }, false},
		{"inverted thresholds", func(c *Config) { c.Settings.AlarmThresMin = 600 }, false},
		{"song startup sound", func(c *Config) { c.Settings.StartupSound = 5 }, true},
		{"unknown startup sound", func(c *Config) { c.Settings.StartupSound = 100 }, false},
		{"qos 3", func(c *Config) { c.Relay.MQTT.QoS = 3 }, false},
		{"websocket path", func(c *Config) {
			c.Relay.WebSocket.Listen = ":8080"
			c.Relay.WebSocket.Path = "ws"
		}, false},
		{"gpio map", func(c *Config) {
			c.GPIO = GPIOConfig{
				Chip:   "gpiochip0",
				Senses: map[string]int{"brake": 4, "ign": 5},
				Relays: map[string]int{"light": 6},
				Gears:  []int{10, 11, 12, 13},
			}
		}, true},
		{"gpio shared offset", func(c *Config) {
			c.GPIO.Senses = map[string]int{"brake": 4}
			c.GPIO.Relays = map[string]int{"brake": 4}
		}, false},
		{"gpio negative offset", func(c *Config) { c.GPIO.Gears = []int{-1} }, false},
		{"gpio five gears", func(c *Config) { c.GPIO.Gears = []int{1, 2, 3, 4, 5} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSettings))
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Settings.Pincode = ""
	cfg.Settings.BlinkSpeed = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pincode")
	assert.Contains(t, err.Error(), "blink_speed")
}

// ============================================================
// Store Tests
// ============================================================

func TestStore_UpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tandem.yaml")
	s := NewStore(path, nil)

	require.NoError(t, s.Update(func(st *Settings) { st.PSensesMask = SenseBrake }))
	assert.Equal(t, SenseBrake, s.Settings().PSensesMask)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SenseBrake, reloaded.Settings.PSensesMask)
}

func TestStore_RejectsInvalidUpdate(t *testing.T) {
	s := NewStore("", nil)
	err := s.Update(func(st *Settings) { st.Pincode = "x" })
	require.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, "0000", s.Settings().Pincode)
}
