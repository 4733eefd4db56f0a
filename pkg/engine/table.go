// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"github.com/Thermoquad/tandem/pkg/fsm"
)

// The state word holds the debounced gear, 0 while no gear pin is
// asserted. The reported gear lags it and only drops to neutral after the
// neutral timeout.

func gearOn(n int) fsm.Guard {
	return func(s fsm.StateWord) bool { return s != fsm.StateWord(n) }
}

func gearOff(n int) fsm.Guard {
	return func(s fsm.StateWord) bool { return s == fsm.StateWord(n) }
}

func (c *Controller) table() fsm.Table {
	t := fsm.Table{
		{Event: EvReadBattery, Name: "read_battery", Guard: fsm.Always, Action: c.readBattery},
		{Event: EvReadTemperature, Name: "read_temperature", Guard: fsm.Always, Action: c.readTemperature},
		{Event: EvReadCurrent, Name: "read_current", Guard: fsm.Always, Action: c.readCurrent},
		{Event: EvReadAccel, Name: "read_accel", Guard: fsm.Always, Action: c.readAccel},
	}
	// Off entries come first so a gear change releases the old gear
	// before the new one is taken
	for n := 1; n <= Gears; n++ {
		t = append(t, fsm.Transition{
			Event:  gearEvents[n-1].off,
			Name:   "gear_off",
			Guard:  gearOff(n),
			Action: func(m *fsm.Machine) { m.Replace(0) },
		})
	}
	for n := 1; n <= Gears; n++ {
		gear := n
		t = append(t, fsm.Transition{
			Event: gearEvents[n-1].on,
			Name:  "gear_on",
			Guard: gearOn(n),
			Action: func(m *fsm.Machine) {
				c.gear.Store(uint32(gear))
				m.Replace(fsm.StateWord(gear))
			},
		})
	}
	return t
}

var gearEvents = [Gears]struct{ on, off fsm.Event }{
	{EvG1On, EvG1Off},
	{EvG2On, EvG2Off},
	{EvG3On, EvG3Off},
	{EvG4On, EvG4Off},
}

// Read flags, one per telemetry event, armed by the sense tick
const (
	readBattery uint32 = 1 << iota
	readCurrent
	readTemperature
	readAccel
	readAll = readBattery | readCurrent | readTemperature | readAccel
)

func (c *Controller) take(flag uint32) bool {
	return c.reads.And(^flag)&flag != 0
}

func (c *Controller) readBattery(*fsm.Machine) {
	if c.take(readBattery) {
		c.telemetry.Voltage = Voltage(c.hw.ADC.Channel(ChBattery))
	}
}

func (c *Controller) readCurrent(*fsm.Machine) {
	if c.take(readCurrent) {
		c.telemetry.Current = Current(c.hw.ADC.Channel(ChCurrent))
	}
}

func (c *Controller) readTemperature(*fsm.Machine) {
	if c.take(readTemperature) {
		c.telemetry.Temperature = Temperature(c.hw.ADC.Channel(ChTemperature))
	}
}

func (c *Controller) readAccel(*fsm.Machine) {
	if c.take(readAccel) {
		c.telemetry.AccelX = c.hw.ADC.Channel(ChAccelX)
		c.telemetry.AccelY = c.hw.ADC.Channel(ChAccelY)
		c.telemetry.AccelZ = c.hw.ADC.Channel(ChAccelZ)
	}
}
