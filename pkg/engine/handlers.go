// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"math/rand/v2"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

// handleStats answers a poll with the current telemetry on the transport
// the poll came from
func (c *Controller) handleStats(f *protocol.Frame, from protocol.Interface) {
	port := c.port
	if from == protocol.IfExternal {
		port = c.ext
	}
	if port.SendString(protocol.CmdStats, c.Telemetry().Encode()) {
		c.polls.Add(1)
	}
}

// handleRelay passes Body's state, data and gps frames through to the
// clients unchanged
func (c *Controller) handleRelay(f *protocol.Frame, from protocol.Interface) {
	if from != protocol.IfLink {
		return
	}
	if c.trace && bool(glog.V(1)) {
		glog.Infof("RELAY %s: %s", f.ID(), f.Payload())
	}
	c.ext.Send(f.ID(), f.Payload())
	c.relayed.Add(1)
	if c.observer != nil {
		c.observer.Observe(f)
	}
}

// handleSound plays a sound requested by Body or a client
func (c *Controller) handleSound(f *protocol.Frame, from protocol.Interface) {
	code, err := protocol.DecodeSound(f.Text())
	if err != nil {
		if glog.V(2) {
			glog.Infof("engine: bad sound payload %q: %v", f.Text(), err)
		}
		return
	}
	if c.trace && bool(glog.V(1)) {
		glog.Infof("SOUND %s from %s", protocol.FormatSound(code), from)
	}
	c.SetSound(code)
}

// handleSense forwards a client's dynamic sense status to Body
func (c *Controller) handleSense(f *protocol.Frame, from protocol.Interface) {
	status, err := protocol.DecodeSense(f.Text())
	if err != nil {
		if glog.V(2) {
			glog.Infof("engine: bad sense payload %q: %v", f.Text(), err)
		}
		return
	}
	c.port.SendString(protocol.CmdSense, protocol.EncodeSense(status))
}

// SetSound mutes the buzzer and starts the sound selected by code.
// SoundRandom picks one of the songs after the alarm, seeded from the
// accelerometer and battery channels.
func (c *Controller) SetSound(code uint8) {
	c.hw.Buzzer.Stop()
	c.lastSound.Store(int32(code))

	switch code {
	case protocol.SoundRandom:
		var seed uint64
		for ch := ChAccelX; ch <= ChBattery; ch++ {
			seed += uint64(c.hw.ADC.Channel(ch))
		}
		r := rand.New(rand.NewPCG(seed, seed>>1))
		c.hw.Buzzer.Play(1 + r.IntN(protocol.SongCount-1))
	case protocol.SoundOff:
	case protocol.SoundBeep:
		c.hw.Buzzer.Beep()
	default:
		if int(code) >= protocol.SongCount {
			if glog.V(2) {
				glog.Infof("engine: no song %d", code)
			}
			return
		}
		c.hw.Buzzer.Play(int(code))
	}
}
