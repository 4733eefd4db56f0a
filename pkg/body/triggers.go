// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package body

import (
	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Triggers emit a command on an interface. On the link they return false
// when admission control refused the frame; the caller's next periodic
// poll is the retry. The debug interface always accepts.

// TriggerState publishes the state word
func (c *Controller) TriggerState(iface protocol.Interface) bool {
	word := c.m.State()
	switch iface {
	case protocol.IfLink:
		return c.port.SendString(protocol.CmdState, protocol.EncodeState(c.Timestamp(), uint16(word)))
	case protocol.IfDebug:
		if glog.V(1) {
			glog.Infof("TRACE_STATE %s %s", word, StateString(word))
		}
		return true
	}
	return false
}

// TriggerStats polls Engine for telemetry
func (c *Controller) TriggerStats(iface protocol.Interface) bool {
	switch iface {
	case protocol.IfLink:
		return c.port.Send(protocol.CmdStats, nil)
	case protocol.IfDebug:
		if glog.V(1) {
			glog.Info("TRACE_STATS")
		}
		return true
	}
	return false
}

// TriggerGPS sends the latest position fix, or a bare timestamp while
// there is none
func (c *Controller) TriggerGPS(iface protocol.Interface) bool {
	switch iface {
	case protocol.IfLink:
		var fix *protocol.GPSFix
		if c.hw.GPS != nil {
			fix = c.hw.GPS.Fix()
		}
		return c.port.SendString(protocol.CmdGPS, protocol.EncodeGPS(c.Timestamp(), fix))
	case protocol.IfDebug:
		if glog.V(1) {
			glog.Info("TRACE_GPS")
		}
		return true
	}
	return false
}

// TriggerSound asks Engine's buzzer to play code
func (c *Controller) TriggerSound(code uint8, iface protocol.Interface) bool {
	switch iface {
	case protocol.IfLink:
		return c.port.SendString(protocol.CmdSound, protocol.EncodeSound(code))
	case protocol.IfDebug:
		if glog.V(1) {
			glog.Infof("TRACE_SOUND %s", protocol.FormatSound(code))
		}
		return true
	}
	return false
}

// publishState is the machine's publish hook. A state frame refused by
// admission control is retried every step until it goes out, so the peer
// always converges on the latest word.
func (c *Controller) publishState(s fsm.StateWord) {
	c.state.Store(uint32(s))
	c.statePending = !c.TriggerState(protocol.IfLink)
	if c.trace {
		c.TriggerState(protocol.IfDebug)
	}
}

//////////////////////////////////////////////////////////////
// Handlers
//////////////////////////////////////////////////////////////

// handleStats receives Engine's telemetry reply. The reply is stamped and
// forwarded as a data frame when there is room, then gear and accelerometer
// are kept for the neutral sense.
func (c *Controller) handleStats(f *protocol.Frame, from protocol.Interface) {
	text := f.Text()
	if len(text) == 0 {
		return
	}
	c.port.SendString(protocol.CmdData, protocol.EncodeData(c.Timestamp(), text))

	st, err := protocol.ParseStats(text)
	if err != nil {
		if glog.V(2) {
			glog.Infof("body: bad stats reply %q: %v", text, err)
		}
		return
	}
	c.gear = st.Gear
	c.engine.Store(&st)
	c.received.Add(1)
	if glog.V(1) {
		glog.Infof("body: gear %d accel %d/%d/%d", st.Gear, st.AccelX, st.AccelY, st.AccelZ)
	}
}

// handleSense receives the dynamic sense status forwarded from an external
// client
func (c *Controller) handleSense(f *protocol.Frame, from protocol.Interface) {
	status, err := protocol.DecodeSense(f.Text())
	if err != nil {
		if glog.V(2) {
			glog.Infof("body: bad sense payload %q: %v", f.Text(), err)
		}
		return
	}
	c.SetDynamicStatus(status)
}
