// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the persistent controller settings and the relay
// configuration, stored as YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"
)

// SystemName marks a settings block as initialized. A block carrying any
// other name is replaced with the defaults on load.
const SystemName = "easyrider"

// MaxNameLength bounds system_name and hw_version
const MaxNameLength = 9

// Physical and dynamic sense mask bits
const (
	SenseBrake   uint16 = 1 << 0
	SenseClaxon  uint16 = 1 << 1
	SensePilot   uint16 = 1 << 2
	SenseLight   uint16 = 1 << 3
	SenseIgn     uint16 = 1 << 4
	SenseRI      uint16 = 1 << 5
	SenseLI      uint16 = 1 << 6
	SenseWarning uint16 = 1 << 7
	SenseAlarm   uint16 = 1 << 8
)

// ErrInvalidSettings wraps every validation failure
var ErrInvalidSettings = errors.New("invalid settings")

// ---- SETTINGS ----

// Settings is the controller's persistent settings block
type Settings struct {
	SystemName     string `yaml:"system_name"`
	PowerCycles    uint32 `yaml:"power_cycles"`
	Pincode        string `yaml:"pincode"`
	SDLog          uint8  `yaml:"sd_log"`
	SWVersion      uint16 `yaml:"sw_version"`
	HWVersion      string `yaml:"hw_version"`
	PSensesMask    uint16 `yaml:"p_senses_active"`
	DSensesMask    uint16 `yaml:"d_senses_active"`
	IndicatorSound uint8  `yaml:"indicator_sound"`
	BlinkSpeed     uint16 `yaml:"blink_speed"`
	StartupSound   uint8  `yaml:"startup_sound"`

	AlarmSettleTime     uint16 `yaml:"alarm_settle_time"`
	AlarmCounter        uint8  `yaml:"alarm_counter"`
	AlarmTrigger        uint8  `yaml:"alarm_trigger"`
	AlarmTriggerCounter uint8  `yaml:"alarm_trigger_counter"`
	AlarmThresMin       uint16 `yaml:"alarm_thres_min"`
	AlarmThresMax       uint16 `yaml:"alarm_thres_max"`
}

// DefaultSettings returns the factory settings
func DefaultSettings() Settings {
	return Settings{
		SystemName:     SystemName,
		Pincode:        "0000",
		SWVersion:      100,
		HWVersion:      "rev B",
		PSensesMask:    0xFFFF,
		DSensesMask:    0,
		IndicatorSound: 1,
		BlinkSpeed:     9765,
		StartupSound:   255,

		AlarmSettleTime:     800,
		AlarmCounter:        6,
		AlarmTrigger:        18,
		AlarmTriggerCounter: 4,
		AlarmThresMin:       140,
		AlarmThresMax:       550,
	}
}

// ---- RELAY ----

// RelayConfig selects where relayed telemetry goes. Empty sections are
// disabled.
type RelayConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Redis     RedisConfig     `yaml:"redis"`
}

type WebSocketConfig struct {
	Listen   string `yaml:"listen"` // e.g. ":8080"
	Path     string `yaml:"path"`
	Username string `yaml:"username"` // basic auth, disabled when empty
	Password string `yaml:"password"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. "tcp://localhost:1883"
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         uint8  `yaml:"qos"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`     // hash holding the latest snapshot
	Channel  string `yaml:"channel"` // pub/sub channel for updates
}

// ---- HARDWARE ----

// GPIOConfig maps controller inputs and outputs to line offsets on a GPIO
// chip. Inputs are active low with the pull-up enabled. Unmapped inputs
// read as released and unmapped relays are ignored.
type GPIOConfig struct {
	Chip   string         `yaml:"chip"`   // e.g. "gpiochip0"; GPIO is disabled when empty
	Senses map[string]int `yaml:"senses,omitempty"` // sense name -> offset
	Relays map[string]int `yaml:"relays,omitempty"` // relay name -> offset
	Gears  []int          `yaml:"gears,omitempty"`  // offsets of gear 1..4
}

// Config is the complete configuration file
type Config struct {
	Settings Settings    `yaml:"settings"`
	Relay    RelayConfig `yaml:"relay"`
	GPIO     GPIOConfig  `yaml:"gpio"`
}

// Default returns the factory configuration
func Default() *Config {
	return &Config{
		Settings: DefaultSettings(),
		Relay: RelayConfig{
			WebSocket: WebSocketConfig{Path: "/ws"},
			MQTT:      MQTTConfig{TopicPrefix: "tandem"},
			Redis:     RedisConfig{Key: "tandem", Channel: "tandem"},
		},
	}
}

// Load reads a configuration file. A missing file yields the defaults.
// Settings whose system name does not match are reset to the factory
// settings, as an uninitialized EEPROM would be.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			glog.Infof("config: %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Settings.SystemName != SystemName {
		glog.Warningf("config: system name %q does not match, restoring default settings",
			cfg.Settings.SystemName)
		cfg.Settings = DefaultSettings()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
