// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package hal

import (
	"errors"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/config"
)

// ErrNoGPIO is returned where the GPIO character device does not exist
var ErrNoGPIO = errors.New("GPIO is only supported on Linux")

// GPIO is unavailable on this platform
type GPIO struct{}

// OpenGPIO always fails on this platform
func OpenGPIO(cfg config.GPIOConfig) (*GPIO, error) {
	if _, err := ResolveMap(cfg); err != nil {
		return nil, err
	}
	return nil, ErrNoGPIO
}

func (*GPIO) Asserted(uint16) bool { return false }
func (*GPIO) Engaged(int) bool     { return false }
func (*GPIO) Set(body.Relay, bool) {}
func (*GPIO) Close() error         { return nil }
