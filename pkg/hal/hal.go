// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal provides the controller hardware: in-memory latches used by
// the simulator and shell, and GPIO character device lines on Linux.
package hal

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/engine"
)

// ErrUnknownName is returned for sense or relay names that do not exist
var ErrUnknownName = errors.New("unknown name")

//////////////////////////////////////////////////////////////
// Senses
//////////////////////////////////////////////////////////////

// SenseLatch holds sense inputs set by software
type SenseLatch struct {
	bits atomic.Uint32
}

var _ body.SenseInputs = (*SenseLatch)(nil)

// Asserted implements body.SenseInputs
func (s *SenseLatch) Asserted(sense uint16) bool {
	return s.bits.Load()&uint32(sense) != 0
}

// Set asserts or releases the senses in mask
func (s *SenseLatch) Set(mask uint16, on bool) {
	if on {
		s.bits.Or(uint32(mask))
	} else {
		s.bits.And(^uint32(mask))
	}
}

// Press asserts the named sense
func (s *SenseLatch) Press(name string) error {
	flag, err := ParseSense(name)
	if err != nil {
		return err
	}
	s.Set(flag, true)
	return nil
}

// Release releases the named sense
func (s *SenseLatch) Release(name string) error {
	flag, err := ParseSense(name)
	if err != nil {
		return err
	}
	s.Set(flag, false)
	return nil
}

// Toggle flips the named sense and returns its new level
func (s *SenseLatch) Toggle(name string) (bool, error) {
	flag, err := ParseSense(name)
	if err != nil {
		return false, err
	}
	on := !s.Asserted(flag)
	s.Set(flag, on)
	return on, nil
}

// Word returns every asserted sense as a mask
func (s *SenseLatch) Word() uint16 {
	return uint16(s.bits.Load())
}

// ParseSense maps a sense name to its flag
func ParseSense(name string) (uint16, error) {
	flag, ok := body.SenseNames[name]
	if !ok {
		return 0, fmt.Errorf("sense %q: %w", name, ErrUnknownName)
	}
	return flag, nil
}

// SenseList returns the sense names in flag order
func SenseList() []string {
	names := make([]string, 0, len(body.SenseNames))
	for n := range body.SenseNames {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return body.SenseNames[names[i]] < body.SenseNames[names[j]]
	})
	return names
}

//////////////////////////////////////////////////////////////
// Gears
//////////////////////////////////////////////////////////////

// GearLatch holds the gear inputs set by software. At most one gear is
// engaged at a time, as with the physical selector.
type GearLatch struct {
	gear atomic.Int32
}

var _ engine.GearInputs = (*GearLatch)(nil)

// Engaged implements engine.GearInputs
func (g *GearLatch) Engaged(gear int) bool {
	return gear > 0 && int(g.gear.Load()) == gear
}

// Select engages gear; 0 selects none
func (g *GearLatch) Select(gear int) error {
	if gear < 0 || gear > engine.Gears {
		return fmt.Errorf("gear %d out of range 0-%d", gear, engine.Gears)
	}
	g.gear.Store(int32(gear))
	return nil
}

// Selected returns the engaged gear, 0 when none
func (g *GearLatch) Selected() int {
	return int(g.gear.Load())
}

//////////////////////////////////////////////////////////////
// Relays
//////////////////////////////////////////////////////////////

// RelayBank records relay outputs. OnChange, when set, is called after
// every change of level from the caller's goroutine.
type RelayBank struct {
	mu       sync.Mutex
	on       [body.RelayCount]bool
	OnChange func(r body.Relay, on bool)
}

var _ body.Relays = (*RelayBank)(nil)

// Set implements body.Relays
func (b *RelayBank) Set(r body.Relay, on bool) {
	if r < 0 || r >= body.RelayCount {
		return
	}
	b.mu.Lock()
	changed := b.on[r] != on
	b.on[r] = on
	cb := b.OnChange
	b.mu.Unlock()

	if !changed {
		return
	}
	if glog.V(2) {
		glog.Infof("hal: relay %s %v", r, on)
	}
	if cb != nil {
		cb(r, on)
	}
}

// On reports the level of r
func (b *RelayBank) On(r body.Relay) bool {
	if r < 0 || r >= body.RelayCount {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on[r]
}

// Levels returns the level of every relay
func (b *RelayBank) Levels() [body.RelayCount]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

// ParseRelay maps a relay name to the relay
func ParseRelay(name string) (body.Relay, error) {
	for r := body.Relay(0); r < body.RelayCount; r++ {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("relay %q: %w", name, ErrUnknownName)
}

//////////////////////////////////////////////////////////////
// ADC
//////////////////////////////////////////////////////////////

// ADCBank holds the last conversion of every channel
type ADCBank struct {
	ch [engine.ADCChannels]atomic.Uint32
}

var _ engine.ADC = (*ADCBank)(nil)

// NewADCBank returns a bank preloaded with the given readings
func NewADCBank(initial engine.StaticADC) *ADCBank {
	b := &ADCBank{}
	for i, v := range initial {
		b.ch[i].Store(uint32(v))
	}
	return b
}

// Channel implements engine.ADC
func (b *ADCBank) Channel(ch int) uint16 {
	if ch < 0 || ch >= engine.ADCChannels {
		return 0
	}
	return uint16(b.ch[ch].Load())
}

// Set stores a conversion, clamped to 10 bits
func (b *ADCBank) Set(ch int, v uint16) error {
	if ch < 0 || ch >= engine.ADCChannels {
		return fmt.Errorf("adc channel %d out of range 0-%d", ch, engine.ADCChannels-1)
	}
	if v > 1023 {
		v = 1023
	}
	b.ch[ch].Store(uint32(v))
	return nil
}

//////////////////////////////////////////////////////////////
// GPIO map
//////////////////////////////////////////////////////////////

// Map is a GPIO configuration with names resolved
type Map struct {
	Chip   string
	Senses map[uint16]int
	Relays map[body.Relay]int
	Gears  []int // index 0 is gear 1
}

// ResolveMap checks the names in cfg and resolves them
func ResolveMap(cfg config.GPIOConfig) (Map, error) {
	m := Map{
		Chip:   cfg.Chip,
		Senses: make(map[uint16]int, len(cfg.Senses)),
		Relays: make(map[body.Relay]int, len(cfg.Relays)),
		Gears:  append([]int(nil), cfg.Gears...),
	}
	var errs []error
	for name, offset := range cfg.Senses {
		flag, err := ParseSense(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.Senses[flag] = offset
	}
	for name, offset := range cfg.Relays {
		r, err := ParseRelay(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.Relays[r] = offset
	}
	if len(m.Gears) > engine.Gears {
		errs = append(errs, fmt.Errorf("%d gear lines (at most %d)", len(m.Gears), engine.Gears))
	}
	if err := errors.Join(errs...); err != nil {
		return Map{}, fmt.Errorf("gpio map: %w", err)
	}
	return m, nil
}
