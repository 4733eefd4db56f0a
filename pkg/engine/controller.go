// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/link"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Timing in 5 ms sense ticks
const (
	SenseTick      = 5 * time.Millisecond
	ProcessTick    = time.Millisecond
	neutralTimeout = 100 // 0.5 s without a gear pin reports neutral
	rpmHold        = 40  // ticks an rpm reading stays valid without pulses
)

// Hardware groups the controller's collaborators. Nil members are replaced
// by inert defaults.
type Hardware struct {
	Gears  GearInputs
	ADC    ADC
	Buzzer Buzzer
}

// Config configures an Engine controller
type Config struct {
	Hardware
	Observer Observer
	Trace    bool // log every relayed frame on the debug interface
}

// Controller is the Engine controller. Step runs on the control loop
// goroutine; Tick, Pulse, FeedExternal and the accessors are safe from
// any goroutine.
type Controller struct {
	m         *fsm.Machine
	port      *protocol.Port
	ext       *protocol.Port
	responder *link.Responder
	hw        Hardware
	observer  Observer
	trace     bool

	gearSenses [Gears]*fsm.Sense
	reads      atomic.Uint32
	neutral    atomic.Uint32

	telemetry protocol.Stats
	snapshot  atomic.Pointer[protocol.Stats]
	current   atomic.Uint32
	gear      atomic.Uint32
	rpm       atomic.Uint32
	rpmReset  atomic.Uint32

	lastSound atomic.Int32
	extMu     sync.Mutex
	polls     atomic.Uint64
	relayed   atomic.Uint64
}

// New creates an Engine controller in neutral with a silent buzzer
func New(cfg Config) *Controller {
	hw := cfg.Hardware
	if hw.Gears == nil {
		hw.Gears = noGears{}
	}
	if hw.ADC == nil {
		hw.ADC = IdleADC
	}
	if hw.Buzzer == nil {
		hw.Buzzer = LogBuzzer{}
	}

	c := &Controller{
		hw:       hw,
		observer: cfg.Observer,
		trace:    cfg.Trace,
	}
	for i := range c.gearSenses {
		c.gearSenses[i] = fsm.NewSense(gearEvents[i].on, gearEvents[i].off)
	}
	c.lastSound.Store(-1)

	reg := protocol.NewRegistry(protocol.EngineSizes)
	reg.Handle(protocol.CmdStats, c.handleStats)
	reg.Handle(protocol.CmdState, c.handleRelay)
	reg.Handle(protocol.CmdData, c.handleRelay)
	reg.Handle(protocol.CmdGPS, c.handleRelay)
	reg.Handle(protocol.CmdSound, c.handleSound)
	c.port = protocol.NewPort("engine", protocol.IfLink, reg)
	c.port.SetGatePolicy(protocol.GateNone)
	c.responder = link.NewResponder(c.port.Out, c.port.In)

	ext := protocol.NewRegistry(protocol.ExternalSizes)
	ext.Handle(protocol.CmdStats, c.handleStats)
	ext.Handle(protocol.CmdSound, c.handleSound)
	ext.Handle(protocol.CmdSense, c.handleSense)
	c.ext = protocol.NewPort("external", protocol.IfExternal, ext)
	c.ext.SetGatePolicy(protocol.GateNone)

	c.m = fsm.NewMachine("engine", c.table(), c.publishGear)
	c.m.Replace(0)
	c.publishTelemetry()

	glog.Info("engine: started")
	return c
}

func (c *Controller) publishGear(s fsm.StateWord) {
	c.current.Store(uint32(s))
}

//////////////////////////////////////////////////////////////
// Accessors
//////////////////////////////////////////////////////////////

// Port returns the shared link port
func (c *Controller) Port() *protocol.Port { return c.port }

// External returns the client transport port
func (c *Controller) External() *protocol.Port { return c.ext }

// Responder returns the link responder serving Port's queues
func (c *Controller) Responder() *link.Responder { return c.responder }

// Machine returns the state machine
func (c *Controller) Machine() *fsm.Machine { return c.m }

// Gear returns the reported gear, 0 for neutral
func (c *Controller) Gear() uint8 { return uint8(c.gear.Load()) }

// CurrentGear returns the gear whose pin is asserted right now
func (c *Controller) CurrentGear() uint8 { return uint8(c.current.Load()) }

// Telemetry returns the values a stats reply would carry now
func (c *Controller) Telemetry() protocol.Stats {
	st := *c.snapshot.Load()
	st.RPM = c.rpm.Load()
	st.Gear = c.Gear()
	return st
}

// LastSound returns the last sound code played, -1 before any
func (c *Controller) LastSound() int { return int(c.lastSound.Load()) }

// Polls returns the number of stats polls answered
func (c *Controller) Polls() uint64 { return c.polls.Load() }

// Relayed returns the number of frames passed to clients
func (c *Controller) Relayed() uint64 { return c.relayed.Load() }

//////////////////////////////////////////////////////////////
// Timers
//////////////////////////////////////////////////////////////

// Tick is the 5 ms sense timer: it arms the gear debouncers and the
// telemetry reads, advances the neutral counter and expires a stale rpm
func (c *Controller) Tick() {
	if c.rpmReset.Load() > 0 {
		c.rpmReset.Add(^uint32(0))
	} else {
		c.rpm.Store(0)
	}
	if c.current.Load() == 0 {
		c.neutral.Add(1)
	} else {
		c.neutral.Store(0)
	}
	c.reads.Or(readAll)
	for _, s := range c.gearSenses {
		s.Tick()
	}
}

// Pulse records one ignition pulse, ticks10us after the previous one
func (c *Controller) Pulse(ticks10us uint32) {
	if ticks10us == 0 {
		return
	}
	c.rpm.Store(RPM(ticks10us))
	c.rpmReset.Store(rpmHold)
}

// FeedExternal queues bytes received from a client. Concurrent callers
// are serialized.
func (c *Controller) FeedExternal(p []byte) {
	c.extMu.Lock()
	c.ext.In.Write(p)
	c.extMu.Unlock()
}

//////////////////////////////////////////////////////////////
// Control loop
//////////////////////////////////////////////////////////////

// Step runs one control loop iteration: poll, drain the event queue, then
// handle every complete inbound frame on both transports
func (c *Controller) Step() {
	c.poll()
	c.m.Dispatch()
	c.publishTelemetry()

	c.port.ProcessAll()
	c.ext.ProcessAll()
}

// Run drives the controller from wall clock timers until ctx is done
func (c *Controller) Run(ctx context.Context) error {
	sense := time.NewTicker(SenseTick)
	defer sense.Stop()
	process := time.NewTicker(ProcessTick)
	defer process.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sense.C:
			c.Tick()
		case <-process.C:
		}
		c.Step()
	}
}

// poll pushes events in priority order
func (c *Controller) poll() {
	q := c.m.Queue()
	q.Push(EvReadBattery)
	q.Push(EvReadCurrent)
	q.Push(EvReadTemperature)
	q.Push(EvReadAccel)
	for i, s := range c.gearSenses {
		s.Poll(c.hw.Gears.Engaged(i+1), q)
	}
	c.checkNeutral()
}

// checkNeutral reports neutral once no gear pin was seen for the timeout
func (c *Controller) checkNeutral() {
	if c.neutral.Load() < neutralTimeout {
		return
	}
	c.neutral.Store(0)
	if c.gear.Load() != 0 {
		c.gear.Store(0)
		if glog.V(1) {
			glog.Info("engine: neutral")
		}
	}
}

func (c *Controller) publishTelemetry() {
	st := c.telemetry
	c.snapshot.Store(&st)
}
