// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package body

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/link"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// Timer thresholds in 5 ms sense ticks. Both periodic triggers fire every
// 100 ms; gps is offset by 50 ms so the two polls never share a loop.
const (
	statsFire  = 25
	statsReset = 5
	gpsFire    = 35
	gpsReset   = 15
)

// Tick periods
const (
	SenseTick = 5 * time.Millisecond
	RTCTick   = 40 * time.Millisecond
)

// BlinkPeriod converts the blink_speed setting (timer compare value at
// 51.2 us per count) into a duration. The default 9765 is half a second.
func BlinkPeriod(speed uint16) time.Duration {
	return time.Duration(speed) * 51200 * time.Nanosecond
}

// burstLimit bounds how many extra steps Run takes between ticks while the
// link still has bytes to move
const burstLimit = 512

type blinkFlag struct{ atomic.Bool }

func (f *blinkFlag) take() bool { return f.CompareAndSwap(true, false) }

// Hardware groups the controller's collaborators. Nil members are replaced
// by inert defaults.
type Hardware struct {
	Senses SenseInputs
	Relays Relays
	Clock  Clock
	GPS    GPSSource
}

// Config configures a Body controller
type Config struct {
	Hardware
	Store SettingsStore // required

	// Exchanger clocks the shared link. When nil, the caller moves bytes
	// between Port().Out/In and the peer itself.
	Exchanger       link.Exchanger
	PinMux          link.PinMux
	ExchangeTimeout time.Duration

	GatePolicy protocol.GatePolicy
	Trace      bool // mirror every trigger to the debug interface
}

// Controller is the Body controller. Step and every trigger run on the
// control loop goroutine; Tick, BlinkTick, RTCTick and the accessors are
// safe from any goroutine.
type Controller struct {
	m     *fsm.Machine
	port  *protocol.Port
	link  *link.Initiator
	hw    Hardware
	store SettingsStore
	trace bool

	settings config.Settings
	pMask    atomic.Uint32
	dMask    atomic.Uint32
	dStatus  atomic.Uint32

	senses map[uint16]*fsm.Sense
	order  []senseDef

	statsTimer atomic.Uint32
	gpsTimer   atomic.Uint32
	rtcFlag    atomic.Bool

	blinkRI      blinkFlag
	blinkLI      blinkFlag
	blinkWarning blinkFlag

	datetime protocol.DateTime
	msEpoch  time.Time
	now      func() time.Time

	gear     uint8
	engine   atomic.Pointer[protocol.Stats]
	received atomic.Uint64

	state        atomic.Uint32
	outputs      atomic.Uint32
	statePending bool
	linkErrors   atomic.Uint64
}

// New creates a Body controller and runs the startup sequence: settings
// are loaded and the power cycle counter bumped, every relay is switched
// off and the state becomes SLEEP.
func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("body: settings store required")
	}
	hw := cfg.Hardware
	if hw.Senses == nil {
		hw.Senses = noSenses{}
	}
	if hw.Relays == nil {
		hw.Relays = noRelays{}
	}
	if hw.Clock == nil {
		hw.Clock = SystemClock{}
	}

	c := &Controller{
		hw:    hw,
		store: cfg.Store,
		trace: cfg.Trace,
		now:   time.Now,
		order: []senseDef{
			senseBrake, senseClaxon, senseLight, senseRI, senseLI,
			senseWarning, sensePilot, senseAlarm,
		},
		senses: make(map[uint16]*fsm.Sense),
	}
	for _, d := range append(c.order, senseIgn) {
		c.senses[d.flag] = fsm.NewSense(d.on, d.off)
	}

	reg := protocol.NewRegistry(protocol.BodySizes)
	reg.Handle(protocol.CmdStats, c.handleStats)
	reg.Handle(protocol.CmdSense, c.handleSense)
	c.port = protocol.NewPort("body", protocol.IfLink, reg)
	c.port.SetGatePolicy(cfg.GatePolicy)

	if cfg.Exchanger != nil {
		c.link = link.NewInitiator(c.port.Out, c.port.In, cfg.Exchanger, link.InitiatorConfig{
			Timeout: cfg.ExchangeTimeout,
			PinMux:  cfg.PinMux,
		})
	}

	c.m = fsm.NewMachine("body", c.table(), c.publishState)

	if err := c.store.Update(func(s *config.Settings) { s.PowerCycles++ }); err != nil {
		return nil, fmt.Errorf("failed to record power cycle: %w", err)
	}
	c.settings = c.store.Settings()
	c.pMask.Store(uint32(c.settings.PSensesMask))
	c.dMask.Store(uint32(c.settings.DSensesMask))

	c.allRelays(false)
	c.datetime = c.hw.Clock.Now()
	c.msEpoch = c.now()
	c.m.Replace(StSleep)

	glog.Infof("body: %s started, power cycle %d", c.settings.SystemName, c.settings.PowerCycles)
	return c, nil
}

//////////////////////////////////////////////////////////////
// Accessors
//////////////////////////////////////////////////////////////

// Port returns the shared link port
func (c *Controller) Port() *protocol.Port { return c.port }

// Link returns the link initiator, nil when bytes are moved externally
func (c *Controller) Link() *link.Initiator { return c.link }

// Machine returns the state machine
func (c *Controller) Machine() *fsm.Machine { return c.m }

// State returns the last published state word
func (c *Controller) State() fsm.StateWord { return fsm.StateWord(c.state.Load()) }

// Relay reports whether r is switched on
func (c *Controller) Relay(r Relay) bool { return c.outputs.Load()&(1<<uint(r)) != 0 }

// Engine returns the telemetry last reported by Engine, false before the
// first reply
func (c *Controller) Engine() (protocol.Stats, bool) {
	st := c.engine.Load()
	if st == nil {
		return protocol.Stats{}, false
	}
	return *st, true
}

// StatsReceived returns the number of telemetry replies handled
func (c *Controller) StatsReceived() uint64 { return c.received.Load() }

// LinkErrors returns the number of failed link exchanges
func (c *Controller) LinkErrors() uint64 { return c.linkErrors.Load() }

//////////////////////////////////////////////////////////////
// Timers
//////////////////////////////////////////////////////////////

// Tick is the 5 ms sense timer: it arms every debouncer and advances the
// periodic trigger timers
func (c *Controller) Tick() {
	for _, s := range c.senses {
		s.Tick()
	}
	c.statsTimer.Add(1)
	c.gpsTimer.Add(1)
}

// BlinkTick is the indicator blink timer
func (c *Controller) BlinkTick() {
	c.blinkRI.Store(true)
	c.blinkLI.Store(true)
	c.blinkWarning.Store(true)
}

// RTCTick requests a clock read on the next step
func (c *Controller) RTCTick() {
	c.rtcFlag.Store(true)
}

//////////////////////////////////////////////////////////////
// Settings
//////////////////////////////////////////////////////////////

// SetPhysicalSenses selects which senses are read from pins and persists
// the mask
func (c *Controller) SetPhysicalSenses(mask uint16) error {
	if err := c.store.Update(func(s *config.Settings) { s.PSensesMask = mask }); err != nil {
		return err
	}
	c.pMask.Store(uint32(mask))
	return nil
}

// SetDynamicSenses selects which senses follow the dynamic status word and
// persists the mask
func (c *Controller) SetDynamicSenses(mask uint16) error {
	if err := c.store.Update(func(s *config.Settings) { s.DSensesMask = mask }); err != nil {
		return err
	}
	c.dMask.Store(uint32(mask))
	return nil
}

// SetDynamicStatus sets the on/off status of the dynamic senses
func (c *Controller) SetDynamicStatus(status uint16) {
	c.dStatus.Store(uint32(status))
}

// DynamicStatus returns the dynamic sense status word
func (c *Controller) DynamicStatus() uint16 { return uint16(c.dStatus.Load()) }

//////////////////////////////////////////////////////////////
// Control loop
//////////////////////////////////////////////////////////////

// Step runs one control loop iteration: poll senses and timers, drain the
// event queue, then move at most one link byte and decode at most one
// inbound byte.
func (c *Controller) Step(ctx context.Context) {
	c.poll()
	c.m.Dispatch()

	if c.statePending {
		c.statePending = !c.TriggerState(protocol.IfLink)
	}

	if c.link != nil {
		if err := c.link.Poll(ctx); err != nil {
			c.linkErrors.Add(1)
			if glog.V(2) {
				glog.Infof("body: %v", err)
			}
		}
	}
	c.port.Process()
}

// Pending reports whether the link or the inbound queue still has work
func (c *Controller) Pending() bool {
	if !c.port.In.Empty() {
		return true
	}
	return c.link != nil && c.link.Pending()
}

// Run drives the controller from wall clock timers until ctx is done.
// Between ticks it keeps stepping while bytes are in flight.
func (c *Controller) Run(ctx context.Context) error {
	sense := time.NewTicker(SenseTick)
	defer sense.Stop()
	blink := time.NewTicker(BlinkPeriod(c.settings.BlinkSpeed))
	defer blink.Stop()
	rtc := time.NewTicker(RTCTick)
	defer rtc.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sense.C:
			c.Tick()
		case <-blink.C:
			c.BlinkTick()
		case <-rtc.C:
			c.RTCTick()
		}
		c.Step(ctx)
		for n := 0; n < burstLimit && c.Pending(); n++ {
			c.Step(ctx)
		}
	}
}

// poll pushes events in priority order
func (c *Controller) poll() {
	for _, d := range c.order {
		c.checkSense(d)
	}
	c.checkNeutral()
	c.checkRTC()
	c.checkStats()
	c.checkGPS()
	c.checkSense(senseIgn)
}

// checkSense reads a sense from its pin, its dynamic status, or both,
// depending on the active masks
func (c *Controller) checkSense(d senseDef) {
	q := c.m.Queue()
	if uint16(c.pMask.Load())&d.flag == d.flag {
		c.senses[d.flag].Poll(c.hw.Senses.Asserted(d.flag), q)
	}
	if uint16(c.dMask.Load())&d.flag == d.flag {
		if uint16(c.dStatus.Load())&d.flag == d.flag {
			q.Push(d.on)
		} else {
			q.Push(d.off)
		}
	}
}

func (c *Controller) checkNeutral() {
	if c.gear == 0 {
		c.m.Push(EvNeutralOn)
	} else {
		c.m.Push(EvNeutralOff)
	}
}

// checkRTC reads the clock and restarts the millisecond counter when a new
// second has begun
func (c *Controller) checkRTC() {
	if !c.rtcFlag.CompareAndSwap(true, false) {
		return
	}
	prev := c.datetime.Seconds
	c.datetime = c.hw.Clock.Now()
	if c.datetime.Seconds != prev {
		c.msEpoch = c.now()
	}
}

func (c *Controller) checkStats() {
	if c.statsTimer.Load() < statsFire {
		return
	}
	c.statsTimer.Store(statsReset)
	c.TriggerStats(protocol.IfLink)
	if c.trace {
		c.TriggerStats(protocol.IfDebug)
	}
}

func (c *Controller) checkGPS() {
	if c.gpsTimer.Load() < gpsFire {
		return
	}
	c.gpsTimer.Store(gpsReset)
	c.TriggerGPS(protocol.IfLink)
	if c.trace {
		c.TriggerGPS(protocol.IfDebug)
	}
}

// Timestamp returns the current clock reading with milliseconds counted
// since the last second change, capped at 999
func (c *Controller) Timestamp() protocol.DateTime {
	d := c.datetime
	ms := c.now().Sub(c.msEpoch).Milliseconds()
	if ms > 999 {
		ms = 999
	}
	if ms < 0 {
		ms = 0
	}
	d.Milliseconds = uint16(ms)
	return d
}

//////////////////////////////////////////////////////////////
// Relays
//////////////////////////////////////////////////////////////

func (c *Controller) relay(r Relay) bool { return c.Relay(r) }

func (c *Controller) setRelay(r Relay, on bool) {
	bit := uint32(1) << uint(r)
	for {
		old := c.outputs.Load()
		next := old &^ bit
		if on {
			next |= bit
		}
		if c.outputs.CompareAndSwap(old, next) {
			break
		}
	}
	c.hw.Relays.Set(r, on)
}

func (c *Controller) toggleRelay(r Relay) {
	c.setRelay(r, !c.Relay(r))
}

// allRelays switches every output. The status cockpit lamp follows the
// lights; the claxon is always switched off.
func (c *Controller) allRelays(on bool) {
	for r := Relay(0); r < RelayCount; r++ {
		if r == RelayClaxon {
			c.setRelay(r, false)
			continue
		}
		c.setRelay(r, on)
	}
}
