// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package engine implements the Engine controller: gear sensing, board
// telemetry and the buzzer. Engine answers Body's stats polls on the
// shared link and relays Body's frames to external clients.
package engine

import (
	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Events
const (
	EvReadBattery     fsm.Event = 2
	EvReadCurrent     fsm.Event = 3
	EvReadTemperature fsm.Event = 4
	EvReadAccel       fsm.Event = 5
	EvG1On            fsm.Event = 6
	EvG1Off           fsm.Event = 7
	EvG2On            fsm.Event = 8
	EvG2Off           fsm.Event = 9
	EvG3On            fsm.Event = 10
	EvG3Off           fsm.Event = 11
	EvG4On            fsm.Event = 12
	EvG4Off           fsm.Event = 13
)

// Gears is the number of sensed gears; 0 is neutral
const Gears = 4

// ADC channels
const (
	ChAccelX = iota
	ChAccelY
	ChAccelZ
	ChBattery
	ChCurrent
	ChTemperature
	ADCChannels
)

//////////////////////////////////////////////////////////////
// Conversions
//////////////////////////////////////////////////////////////

// Voltage converts the battery channel to mV. The divider is 2.2k/1k
// against a 5 V reference: 49 * adc / 3.125.
func Voltage(adc uint16) uint32 {
	return uint32(adc) * 49 * 8 / 25
}

// Current converts the current sensor channel to mA. The sensor idles at
// mid scale and each step is about 25 mA.
func Current(adc uint16) uint16 {
	d := 512 - int(adc)
	if d < 0 {
		d = -d
	}
	return uint16(d * 25)
}

// Temperature converts the LM35 channel to hundredths of a degree
func Temperature(adc uint16) uint16 {
	return uint16(uint32(adc) * 49)
}

// RPM converts the period between two ignition pulses, counted in 10 us
// ticks, to revolutions per minute. Only every other pulse is seen.
func RPM(ticks10us uint32) uint32 {
	if ticks10us == 0 {
		return 0
	}
	return (100000 / ticks10us * 60) * 2
}

//////////////////////////////////////////////////////////////
// Hardware
//////////////////////////////////////////////////////////////

// GearInputs reads the gear sense pins. gear is 1..Gears.
type GearInputs interface {
	Engaged(gear int) bool
}

// ADC reads the last conversion of a channel (10 bit)
type ADC interface {
	Channel(ch int) uint16
}

// Buzzer plays sounds. Play selects a song by index; Beep sounds a
// continuous tone until Stop.
type Buzzer interface {
	Play(song int)
	Beep()
	Stop()
}

// Observer sees every frame Engine relays to its clients
type Observer interface {
	Observe(f *protocol.Frame)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(f *protocol.Frame)

// Observe implements Observer
func (fn ObserverFunc) Observe(f *protocol.Frame) { fn(f) }

type noGears struct{}

func (noGears) Engaged(int) bool { return false }

// IdleADC is a board at rest: level, 12 V battery, no load, about 42 C
var IdleADC = StaticADC{340, 370, 108, 765, 502, 86}

// StaticADC returns fixed channel values
type StaticADC [ADCChannels]uint16

// Channel implements ADC
func (a StaticADC) Channel(ch int) uint16 {
	if ch < 0 || ch >= ADCChannels {
		return 0
	}
	return a[ch]
}

// LogBuzzer logs sounds instead of playing them
type LogBuzzer struct{}

// Play implements Buzzer
func (LogBuzzer) Play(song int) { glog.Infof("engine: buzzer song %d", song) }

// Beep implements Buzzer
func (LogBuzzer) Beep() { glog.Info("engine: buzzer beep") }

// Stop implements Buzzer
func (LogBuzzer) Stop() {
	if glog.V(1) {
		glog.Info("engine: buzzer stop")
	}
}
