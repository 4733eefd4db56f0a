// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate checks configuration correctness and reports every problem at
// once. It does not modify cfg.
func Validate(cfg *Config) error {
	var errs []error
	errs = append(errs, validateSettings(&cfg.Settings)...)
	errs = append(errs, validateRelay(&cfg.Relay)...)
	errs = append(errs, validateGPIO(&cfg.GPIO)...)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}

// ValidateSettings checks only the settings block
func ValidateSettings(s *Settings) error {
	errs := validateSettings(s)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
}

func validateSettings(s *Settings) []error {
	var errs []error

	if len(s.SystemName) > MaxNameLength {
		errs = append(errs, fmt.Errorf("system_name %q longer than %d characters", s.SystemName, MaxNameLength))
	}
	if len(s.HWVersion) > MaxNameLength {
		errs = append(errs, fmt.Errorf("hw_version %q longer than %d characters", s.HWVersion, MaxNameLength))
	}

	if len(s.Pincode) != 4 {
		errs = append(errs, fmt.Errorf("pincode must be 4 digits"))
	} else {
		for i := 0; i < len(s.Pincode); i++ {
			if s.Pincode[i] < '0' || s.Pincode[i] > '9' {
				errs = append(errs, fmt.Errorf("pincode must be 4 digits"))
				break
			}
		}
	}

	if s.BlinkSpeed == 0 {
		errs = append(errs, fmt.Errorf("blink_speed must be positive"))
	}
	if s.AlarmThresMin >= s.AlarmThresMax {
		errs = append(errs, fmt.Errorf("alarm_thres_min %d must be below alarm_thres_max %d",
			s.AlarmThresMin, s.AlarmThresMax))
	}
	if !validSound(s.StartupSound) {
		errs = append(errs, fmt.Errorf("startup_sound %d is not a song or sound command", s.StartupSound))
	}

	return errs
}

// validSound mirrors the codes the engine buzzer understands: songs
// 0-5 and the beep/off/random commands 253-255
func validSound(code uint8) bool {
	return code < 6 || code >= 253
}

func validateRelay(r *RelayConfig) []error {
	var errs []error
	if r.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos %d out of range 0-2", r.MQTT.QoS))
	}
	if r.MQTT.Broker != "" && r.MQTT.TopicPrefix == "" {
		errs = append(errs, fmt.Errorf("mqtt topic_prefix required when broker is set"))
	}
	if r.Redis.Addr != "" && r.Redis.Key == "" && r.Redis.Channel == "" {
		errs = append(errs, fmt.Errorf("redis needs a key or a channel when addr is set"))
	}
	if r.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis db %d must not be negative", r.Redis.DB))
	}
	if r.WebSocket.Listen != "" && (r.WebSocket.Path == "" || r.WebSocket.Path[0] != '/') {
		errs = append(errs, fmt.Errorf("websocket path %q must start with /", r.WebSocket.Path))
	}
	return errs
}

// MaxGears is the number of gear inputs
const MaxGears = 4

func validateGPIO(g *GPIOConfig) []error {
	var errs []error
	if len(g.Gears) > MaxGears {
		errs = append(errs, fmt.Errorf("gpio has %d gear lines (at most %d)", len(g.Gears), MaxGears))
	}
	used := make(map[int]string)
	claim := func(what string, offset int) {
		if offset < 0 {
			errs = append(errs, fmt.Errorf("gpio %s offset %d must not be negative", what, offset))
			return
		}
		if prev, ok := used[offset]; ok {
			errs = append(errs, fmt.Errorf("gpio offset %d used by %s and %s", offset, prev, what))
			return
		}
		used[offset] = what
	}
	for _, name := range sortedKeys(g.Senses) {
		claim("sense "+name, g.Senses[name])
	}
	for _, name := range sortedKeys(g.Relays) {
		claim("relay "+name, g.Relays[name])
	}
	for i, offset := range g.Gears {
		claim(fmt.Sprintf("gear %d", i+1), offset)
	}
	return errs
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
