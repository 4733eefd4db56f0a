// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package body

import (
	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Guards are written as "none of these bits" or "only these bits" so the
// table reads the same way the state word is documented.

func without(mask fsm.StateWord) fsm.Guard {
	return func(s fsm.StateWord) bool { return s.None(mask) }
}

func with(mask fsm.StateWord) fsm.Guard {
	return func(s fsm.StateWord) bool { return s.Has(mask) }
}

func (c *Controller) table() fsm.Table {
	// The left indicator sense shares its pin with the link select line,
	// which is an output while the link is powered
	linkIdle := func() bool { return c.link == nil || !c.link.Active() }

	return fsm.Table{
		{Event: EvBrakeOn, Name: "brake_on", Guard: without(StBrake | StAlarm | StSleep),
			Action: c.switchOn(StBrake, RelayBrake)},
		{Event: EvBrakeOff, Name: "brake_off", Guard: with(StBrake),
			Action: c.switchOff(StBrake, RelayBrake)},
		{Event: EvClaxonOn, Name: "claxon_on", Guard: without(StClaxon | StAlarm | StSleep),
			Action: c.switchOn(StClaxon, RelayClaxon)},
		{Event: EvClaxonOff, Name: "claxon_off", Guard: with(StClaxon),
			Action: c.switchOff(StClaxon, RelayClaxon)},
		{Event: EvRIOn, Name: "ri_on", Guard: without(StWarning | StLI | StAlarm | StSleep),
			Action: c.blink(StRI, &c.blinkRI, RelayRIFront, RelayRIFront, RelayRIRear)},
		{Event: EvRIOff, Name: "ri_off", Guard: with(StRI),
			Action: c.blinkOff(StRI, RelayRIFront, RelayRIRear)},
		{Event: EvLIOn, Name: "li_on",
			Guard: func(s fsm.StateWord) bool {
				return linkIdle() && s.None(StWarning|StRI|StAlarm|StSleep)
			},
			Action: c.blink(StLI, &c.blinkLI, RelayLIFront, RelayLIFront, RelayLIRear)},
		{Event: EvLIOff, Name: "li_off",
			Guard: func(s fsm.StateWord) bool {
				return linkIdle() && s.Has(StLI)
			},
			Action: c.blinkOff(StLI, RelayLIFront, RelayLIRear)},
		{Event: EvWarningOn, Name: "warning_on", Guard: without(StAlarm | StSleep),
			Action: c.blink(StWarning, &c.blinkWarning, RelayLIFront,
				RelayRIFront, RelayRIRear, RelayLIFront, RelayLIRear)},
		{Event: EvWarningOff, Name: "warning_off", Guard: with(StWarning),
			Action: c.blinkOff(StWarning,
				RelayRIFront, RelayRIRear, RelayLIFront, RelayLIRear)},
		{Event: EvIgnOn, Name: "ign_on",
			Guard:  func(s fsm.StateWord) bool { return s.Within(StSleep | StAlarm) },
			Action: c.ignitionOn},
		{Event: EvIgnOff, Name: "ign_off", Guard: without(StSleep | StAlarm),
			Action: c.ignitionOff},
		{Event: EvPilotOn, Name: "pilot_on", Guard: without(StPilot | StAlarm | StSleep),
			Action: c.switchOn(StPilot, RelayPilot)},
		{Event: EvPilotOff, Name: "pilot_off", Guard: with(StPilot),
			Action: c.switchOff(StPilot, RelayPilot)},
		{Event: EvLightOn, Name: "light_on", Guard: without(StLight | StAlarm | StSleep),
			Action: c.switchOn(StLight, RelayLight)},
		{Event: EvLightOff, Name: "light_off", Guard: with(StLight),
			Action: c.switchOff(StLight, RelayLight)},
		{Event: EvNeutralOn, Name: "neutral_on", Guard: without(StNeutral | StAlarm | StSleep),
			Action: c.switchOn(StNeutral, RelayStatusCockpit)},
		{Event: EvNeutralOff, Name: "neutral_off", Guard: with(StNeutral),
			Action: c.switchOff(StNeutral, RelayStatusCockpit)},
		{Event: EvAlarmOn, Name: "alarm_on",
			Guard:  func(s fsm.StateWord) bool { return s.Has(StActive) && s.None(StAlarmSet) },
			Action: func(m *fsm.Machine) { m.Set(StAlarmSet) }},
		{Event: EvAlarmOff, Name: "alarm_off",
			Guard:  func(s fsm.StateWord) bool { return s.Has(StAlarmSet) && s.None(StAlarm|StSleep) },
			Action: func(m *fsm.Machine) { m.Clear(StAlarmSet) }},
	}
}

func (c *Controller) switchOn(bit fsm.StateWord, r Relay) fsm.Action {
	return func(m *fsm.Machine) {
		c.setRelay(r, true)
		m.Set(bit)
	}
}

func (c *Controller) switchOff(bit fsm.StateWord, r Relay) fsm.Action {
	return func(m *fsm.Machine) {
		c.setRelay(r, false)
		m.Clear(bit)
	}
}

// blink runs on every repeated "on" event but only acts once per blink
// period. The first period lights the lamps, later periods toggle them
// and optionally beep in phase with the phase lamp.
func (c *Controller) blink(bit fsm.StateWord, flag *blinkFlag, phase Relay, lamps ...Relay) fsm.Action {
	all := append(append([]Relay{}, lamps...), RelayIndicatorCockpit)
	return func(m *fsm.Machine) {
		if !flag.take() {
			return
		}
		if !m.Has(bit) {
			m.Set(bit)
			for _, r := range all {
				c.setRelay(r, true)
			}
			return
		}
		for _, r := range all {
			c.toggleRelay(r)
		}
		if c.settings.IndicatorSound != 0 {
			if c.relay(phase) {
				c.TriggerSound(protocol.SoundBeep, protocol.IfLink)
			} else {
				c.TriggerSound(protocol.SoundOff, protocol.IfLink)
			}
		}
	}
}

func (c *Controller) blinkOff(bit fsm.StateWord, lamps ...Relay) fsm.Action {
	all := append(append([]Relay{}, lamps...), RelayIndicatorCockpit)
	return func(m *fsm.Machine) {
		m.Clear(bit)
		for _, r := range all {
			c.setRelay(r, false)
		}
		if c.settings.IndicatorSound != 0 {
			c.TriggerSound(protocol.SoundOff, protocol.IfLink)
		}
	}
}

func (c *Controller) ignitionOn(m *fsm.Machine) {
	c.allRelays(false)
	c.TriggerSound(c.settings.StartupSound, protocol.IfLink)
	if c.trace {
		c.TriggerSound(c.settings.StartupSound, protocol.IfDebug)
	}
	m.Replace(StActive)
}

func (c *Controller) ignitionOff(m *fsm.Machine) {
	c.allRelays(false)
	c.TriggerSound(protocol.SoundOff, protocol.IfLink)
	if c.trace {
		c.TriggerSound(protocol.SoundOff, protocol.IfDebug)
	}
	if m.Has(StAlarmSet) {
		m.Replace(StAlarm)
	} else {
		m.Replace(StSleep)
	}
}
