// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package hal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/warthog618/go-gpiocdev"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/config"
)

// Consumer labels the lines this process holds
const Consumer = "tandem"

// GPIO drives senses, gears and relays through the GPIO character device.
// Inputs are requested active low with the pull-up enabled, so a switch
// closing to ground reads as asserted.
type GPIO struct {
	chip *gpiocdev.Chip

	mu     sync.Mutex
	senses map[uint16]*gpiocdev.Line
	gears  []*gpiocdev.Line
	relays map[body.Relay]*gpiocdev.Line
}

// OpenGPIO requests every line in cfg. On failure the lines already
// requested are released.
func OpenGPIO(cfg config.GPIOConfig) (*GPIO, error) {
	m, err := ResolveMap(cfg)
	if err != nil {
		return nil, err
	}
	chip, err := gpiocdev.NewChip(m.Chip, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", m.Chip, err)
	}
	g := &GPIO{
		chip:   chip,
		senses: make(map[uint16]*gpiocdev.Line),
		relays: make(map[body.Relay]*gpiocdev.Line),
	}

	input := func(offset int) (*gpiocdev.Line, error) {
		return chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	}

	for flag, offset := range m.Senses {
		l, err := input(offset)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to request sense line %d: %w", offset, err)
		}
		g.senses[flag] = l
	}
	for i, offset := range m.Gears {
		l, err := input(offset)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to request gear %d line %d: %w", i+1, offset, err)
		}
		g.gears = append(g.gears, l)
	}
	for r, offset := range m.Relays {
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to request relay %s line %d: %w", r, offset, err)
		}
		g.relays[r] = l
	}

	glog.Infof("hal: %s with %d senses, %d gears, %d relays",
		m.Chip, len(g.senses), len(g.gears), len(g.relays))
	return g, nil
}

func level(l *gpiocdev.Line) bool {
	v, err := l.Value()
	if err != nil {
		glog.Warningf("hal: read line failed: %v", err)
		return false
	}
	return v == 1
}

// Asserted implements body.SenseInputs
func (g *GPIO) Asserted(sense uint16) bool {
	l, ok := g.senses[sense]
	if !ok {
		return false
	}
	return level(l)
}

// Engaged implements engine.GearInputs
func (g *GPIO) Engaged(gear int) bool {
	if gear < 1 || gear > len(g.gears) {
		return false
	}
	return level(g.gears[gear-1])
}

// Set implements body.Relays
func (g *GPIO) Set(r body.Relay, on bool) {
	l, ok := g.relays[r]
	if !ok {
		return
	}
	v := 0
	if on {
		v = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := l.SetValue(v); err != nil {
		glog.Warningf("hal: relay %s: %v", r, err)
	}
}

// Close releases every line and the chip
func (g *GPIO) Close() error {
	var errs []error
	for _, l := range g.senses {
		errs = append(errs, l.Close())
	}
	for _, l := range g.gears {
		errs = append(errs, l.Close())
	}
	for _, l := range g.relays {
		errs = append(errs, l.Close())
	}
	errs = append(errs, g.chip.Close())
	return errors.Join(errs...)
}
