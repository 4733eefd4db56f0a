// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package body

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/fsm"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// ============================================================
// Fakes
// ============================================================

type fakeSenses struct {
	mu       sync.Mutex
	asserted uint16
}

func (f *fakeSenses) Asserted(sense uint16) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.asserted&sense == sense
}

func (f *fakeSenses) press(sense uint16) {
	f.mu.Lock()
	f.asserted |= sense
	f.mu.Unlock()
}

type fakeRelays struct {
	on map[Relay]bool
}

func (f *fakeRelays) Set(r Relay, on bool) { f.on[r] = on }

type fakeClock struct {
	now protocol.DateTime
}

func (f *fakeClock) Now() protocol.DateTime { return f.now }

type fakeGPS struct{ fix *protocol.GPSFix }

func (f fakeGPS) Fix() *protocol.GPSFix { return f.fix }

// alwaysBusy answers every exchange with a non-NOOP byte so the link
// never powers down
type alwaysBusy struct{}

func (alwaysBusy) Exchange(ctx context.Context, out byte) (byte, error) { return 'z', nil }

type rig struct {
	c      *Controller
	senses *fakeSenses
	relays *fakeRelays
	clock  *fakeClock
	store  *config.Store
}

func newRig(t *testing.T, mutate func(*Config)) *rig {
	t.Helper()
	r := &rig{
		senses: &fakeSenses{},
		relays: &fakeRelays{on: make(map[Relay]bool)},
		clock:  &fakeClock{now: protocol.DateTime{Weekday: 3, Day: 7, Month: 2, Year: 24, Hours: 9, Minutes: 5, Seconds: 4}},
		store:  config.NewStore("", nil),
	}
	cfg := Config{
		Hardware: Hardware{Senses: r.senses, Relays: r.relays, Clock: r.clock},
		Store:    r.store,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	r.c = c
	r.frames() // discard the startup state frame
	return r
}

// frames drains the outbound queue and reopens the busy gate
func (r *rig) frames() []*protocol.Frame {
	p := protocol.NewParser(nil)
	var out []*protocol.Frame
	p.Drain(r.c.Port().Out, func(f *protocol.Frame) { out = append(out, f) })
	r.c.Port().Process()
	return out
}

// activate puts Body into ACTIVE as an ignition would, without the sound
func (r *rig) activate() {
	r.c.Machine().Replace(StActive)
	r.frames()
}

func ofType(frames []*protocol.Frame, id protocol.CommandID) []*protocol.Frame {
	var out []*protocol.Frame
	for _, f := range frames {
		if f.ID() == id {
			out = append(out, f)
		}
	}
	return out
}

func lastState(t *testing.T, frames []*protocol.Frame) fsm.StateWord {
	t.Helper()
	states := ofType(frames, protocol.CmdState)
	require.NotEmpty(t, states, "no state frame")
	_, word, err := protocol.DecodeState(states[len(states)-1].Text())
	require.NoError(t, err)
	return fsm.StateWord(word)
}

// ============================================================
// Startup Tests
// ============================================================

func TestNew_StartupSequence(t *testing.T) {
	store := config.NewStore("", nil)
	relays := &fakeRelays{on: make(map[Relay]bool)}
	c, err := New(Config{Hardware: Hardware{Relays: relays}, Store: store})
	require.NoError(t, err)

	assert.Equal(t, StSleep, c.State())
	assert.Equal(t, uint32(1), store.Settings().PowerCycles)
	for r := Relay(0); r < RelayCount; r++ {
		on, seen := relays.on[r]
		assert.True(t, seen, "relay %s not initialized", r)
		assert.False(t, on)
	}

	p := protocol.NewParser(nil)
	var frames []*protocol.Frame
	p.Drain(c.Port().Out, func(f *protocol.Frame) { frames = append(frames, f) })
	assert.Equal(t, StSleep, lastState(t, frames))
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

// ============================================================
// Transition Tests
// ============================================================

func TestBrakeOn_WhileActive(t *testing.T) {
	r := newRig(t, nil)
	r.activate()

	r.c.Machine().Push(EvBrakeOn)
	assert.Equal(t, 1, r.c.Machine().Dispatch())

	assert.True(t, r.c.State().Has(StBrake))
	assert.True(t, r.relays.on[RelayBrake])
	assert.Equal(t, StActive|StBrake, lastState(t, r.frames()))
}

func TestBrakeOn_WhileAsleepChangesNothing(t *testing.T) {
	r := newRig(t, nil)

	r.c.Machine().Push(EvBrakeOn)
	assert.Equal(t, 0, r.c.Machine().Dispatch())

	assert.Equal(t, StSleep, r.c.State())
	assert.False(t, r.relays.on[RelayBrake])
	assert.True(t, r.c.Port().Out.Empty(), "nothing may be queued")
}

func TestGuards(t *testing.T) {
	tests := []struct {
		name   string
		state  fsm.StateWord
		event  fsm.Event
		accept bool
	}{
		{"claxon in alarm", StAlarm, EvClaxonOn, false},
		{"claxon active", StActive, EvClaxonOn, true},
		{"claxon off when off", StActive, EvClaxonOff, false},
		{"ri blocked by warning", StActive | StWarning, EvRIOn, false},
		{"ri blocked by li", StActive | StLI, EvRIOn, false},
		{"warning overrides ri", StActive | StRI, EvWarningOn, true},
		{"ign on from sleep", StSleep, EvIgnOn, true},
		{"ign on from alarm", StAlarm, EvIgnOn, true},
		{"ign on when active", StActive, EvIgnOn, false},
		{"ign off when active", StActive | StBrake, EvIgnOff, true},
		{"ign off when asleep", StSleep, EvIgnOff, false},
		{"alarm arm when active", StActive, EvAlarmOn, true},
		{"alarm arm twice", StActive | StAlarmSet, EvAlarmOn, false},
		{"alarm arm asleep", StSleep, EvAlarmOn, false},
		{"alarm disarm active", StActive | StAlarmSet, EvAlarmOff, true},
		{"alarm disarm in alarm", StAlarm | StAlarmSet, EvAlarmOff, false},
		{"neutral in sleep", StSleep, EvNeutralOn, false},
		{"neutral active", StActive, EvNeutralOn, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, nil)
			r.c.Machine().Replace(tt.state)
			r.c.BlinkTick()
			assert.Equal(t, tt.accept, r.c.Machine().Fire(tt.event))
		})
	}
}

func TestIgnition(t *testing.T) {
	r := newRig(t, nil)

	r.c.Machine().Push(EvIgnOn)
	r.c.Machine().Dispatch()
	assert.Equal(t, StActive, r.c.State())

	frames := r.frames()
	sounds := ofType(frames, protocol.CmdSound)
	require.Len(t, sounds, 1)
	code, err := protocol.DecodeSound(sounds[0].Text())
	require.NoError(t, err)
	assert.Equal(t, uint8(protocol.SoundRandom), code, "default startup sound")

	// Armed alarm: ignition off enters ALARM instead of SLEEP
	r.c.Machine().Push(EvAlarmOn)
	r.c.Machine().Push(EvLightOn)
	r.c.Machine().Dispatch()
	assert.True(t, r.relays.on[RelayLight])
	r.frames()

	r.c.Machine().Push(EvIgnOff)
	r.c.Machine().Dispatch()
	assert.Equal(t, StAlarm, r.c.State())
	assert.False(t, r.relays.on[RelayLight], "ignition off switches every relay off")
}

func TestIndicatorBlink(t *testing.T) {
	r := newRig(t, nil)
	r.activate()
	m := r.c.Machine()

	// Without a blink tick the repeated on event does nothing
	assert.True(t, m.Fire(EvRIOn))
	assert.False(t, r.c.State().Has(StRI))

	r.c.BlinkTick()
	m.Fire(EvRIOn)
	assert.True(t, r.c.State().Has(StRI))
	assert.True(t, r.relays.on[RelayRIFront])
	assert.True(t, r.relays.on[RelayRIRear])
	assert.True(t, r.relays.on[RelayIndicatorCockpit])

	r.c.BlinkTick()
	m.Fire(EvRIOn)
	assert.False(t, r.relays.on[RelayRIFront])
	assert.False(t, r.relays.on[RelayIndicatorCockpit])
	assert.True(t, r.c.State().Has(StRI), "toggling keeps the state bit")

	r.c.BlinkTick()
	m.Fire(EvRIOn)
	assert.True(t, r.relays.on[RelayRIFront])

	m.Fire(EvRIOff)
	assert.False(t, r.c.State().Has(StRI))
	assert.False(t, r.relays.on[RelayRIFront])
	assert.False(t, r.relays.on[RelayRIRear])
}

func TestIndicatorBeepFollowsLamp(t *testing.T) {
	r := newRig(t, func(c *Config) { c.GatePolicy = protocol.GateNone })
	r.activate()
	m := r.c.Machine()

	r.c.BlinkTick()
	m.Fire(EvLIOn) // lamps on, no sound on the first period
	assert.Empty(t, ofType(r.frames(), protocol.CmdSound))

	r.c.BlinkTick()
	m.Fire(EvLIOn) // lamps off
	sounds := ofType(r.frames(), protocol.CmdSound)
	require.Len(t, sounds, 1)
	assert.Equal(t, "254", sounds[0].Text())

	r.c.BlinkTick()
	m.Fire(EvLIOn) // lamps on again
	sounds = ofType(r.frames(), protocol.CmdSound)
	require.Len(t, sounds, 1)
	assert.Equal(t, "253", sounds[0].Text())
}

func TestLeftIndicatorIgnoredWhileLinkActive(t *testing.T) {
	r := newRig(t, func(c *Config) { c.Exchanger = alwaysBusy{} })
	r.activate()

	// Queue something so the link powers up
	r.c.TriggerStats(protocol.IfLink)
	r.c.Step(context.Background())
	require.True(t, r.c.Link().Active())

	r.c.BlinkTick()
	assert.False(t, r.c.Machine().Fire(EvLIOn))
	assert.False(t, r.c.State().Has(StLI))
	assert.True(t, r.c.Machine().Fire(EvRIOn), "right indicator is unaffected")
}

// ============================================================
// Sense Tests
// ============================================================

func TestSenses_IgnitionThenBrake(t *testing.T) {
	r := newRig(t, nil)
	r.senses.press(config.SenseIgn | config.SenseBrake)
	ctx := context.Background()

	for i := 0; i < fsm.DebounceWidth; i++ {
		r.c.Tick()
		r.c.Step(ctx)
	}
	// Brake is polled before ignition, so it was rejected while asleep
	assert.Equal(t, StActive, r.c.State()&^StNeutral)

	r.c.Tick()
	r.c.Step(ctx)
	assert.True(t, r.c.State().Has(StActive|StBrake))
	assert.True(t, r.c.State().Has(StNeutral), "no gear reported yet")
}

func TestSenses_BounceFiresNothing(t *testing.T) {
	r := newRig(t, nil)
	r.activate()
	r.senses.press(config.SenseIgn)
	ctx := context.Background()

	for i := 0; i < 4*fsm.DebounceWidth; i++ {
		if i%2 == 0 {
			r.senses.press(config.SenseBrake)
		} else {
			r.senses.mu.Lock()
			r.senses.asserted &^= config.SenseBrake
			r.senses.mu.Unlock()
		}
		r.c.Tick()
		r.c.Step(ctx)
	}
	assert.False(t, r.c.State().Has(StBrake))
}

func TestSenses_Dynamic(t *testing.T) {
	r := newRig(t, nil)
	r.activate()
	require.NoError(t, r.c.SetPhysicalSenses(config.SenseIgn))
	require.NoError(t, r.c.SetDynamicSenses(config.SenseBrake|config.SenseLight))
	r.senses.press(config.SenseIgn)

	assert.Equal(t, config.SenseIgn, r.store.Settings().PSensesMask)
	assert.Equal(t, config.SenseBrake|config.SenseLight, r.store.Settings().DSensesMask)

	// No ticks needed: dynamic senses are evaluated every loop
	r.c.SetDynamicStatus(config.SenseLight)
	r.c.Step(context.Background())
	assert.True(t, r.c.State().Has(StLight))
	assert.False(t, r.c.State().Has(StBrake))

	r.c.SetDynamicStatus(0)
	r.c.Step(context.Background())
	assert.False(t, r.c.State().Has(StLight))
}

func TestSenseCommand(t *testing.T) {
	r := newRig(t, nil)
	r.c.Port().In.Write(protocol.NewSenseCommand(config.SenseBrake | config.SenseAlarm))
	r.c.Port().ProcessAll()
	assert.Equal(t, config.SenseBrake|config.SenseAlarm, r.c.DynamicStatus())
}

// ============================================================
// Protocol Tests
// ============================================================

func TestStateRoundTrip(t *testing.T) {
	r := newRig(t, nil)
	r.c.Machine().Replace(0x0005)
	assert.Equal(t, fsm.StateWord(0x0005), lastState(t, r.frames()))
}

func TestStatsReply_ForwardsDataAndParsesGear(t *testing.T) {
	r := newRig(t, nil)
	r.activate()

	reply := protocol.Stats{AccelX: 340, AccelY: 370, AccelZ: 108, Current: 250, Voltage: 11995, Temperature: 4214, Gear: 2}
	r.c.Port().In.Write(protocol.NewStatsReply(reply))
	r.c.Port().ProcessAll()

	got, ok := r.c.Engine()
	require.True(t, ok)
	assert.Equal(t, reply, got)
	assert.Equal(t, uint64(1), r.c.StatsReceived())

	data := ofType(r.frames(), protocol.CmdData)
	require.Len(t, data, 1)
	ts, st, err := protocol.DecodeData(data[0].Text())
	require.NoError(t, err)
	assert.Equal(t, reply, st)
	assert.Equal(t, uint8(4), ts.Seconds)

	// A gear clears neutral on the next loop
	r.c.Machine().Replace(StActive | StNeutral)
	r.c.Step(context.Background())
	assert.False(t, r.c.State().Has(StNeutral))
}

func TestPeriodicStatsAndGPS(t *testing.T) {
	fix := &protocol.GPSFix{Fix: 2, Satellites: 7, Latitude: 520000000, Longitude: 45000000}
	r := newRig(t, func(c *Config) { c.GPS = fakeGPS{fix: fix} })
	ctx := context.Background()

	var polls, gps int
	for i := 0; i < 215; i++ {
		r.c.Tick()
		r.c.Step(ctx)
		for _, f := range r.frames() {
			switch f.ID() {
			case protocol.CmdStats:
				polls++
				assert.Empty(t, f.Payload())
			case protocol.CmdGPS:
				gps++
				_, got, err := protocol.DecodeGPS(f.Text())
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, *fix, *got)
			}
		}
	}
	assert.Equal(t, 10, polls)
	assert.Equal(t, 10, gps)
}

func TestTimestampMilliseconds(t *testing.T) {
	r := newRig(t, nil)
	t0 := time.Unix(1000, 0)
	cur := t0.Add(250 * time.Millisecond)
	r.c.now = func() time.Time { return cur }
	r.c.msEpoch = t0

	assert.Equal(t, uint16(250), r.c.Timestamp().Milliseconds)

	cur = t0.Add(3 * time.Second)
	assert.Equal(t, uint16(999), r.c.Timestamp().Milliseconds, "capped until the clock ticks")

	// Same second: no resync
	r.c.RTCTick()
	r.c.Step(context.Background())
	assert.Equal(t, uint16(999), r.c.Timestamp().Milliseconds)

	r.clock.now.Seconds = 5
	r.c.RTCTick()
	r.c.Step(context.Background())
	assert.Equal(t, uint16(0), r.c.Timestamp().Milliseconds)
	assert.Equal(t, uint8(5), r.c.Timestamp().Seconds)
}

// ============================================================
// Admission Control Tests
// ============================================================

func TestTriggerState_RefusedWithoutRoom(t *testing.T) {
	r := newRig(t, func(c *Config) { c.GatePolicy = protocol.GateNone })
	out := r.c.Port().Out

	for free := 0; free <= out.Cap(); free++ {
		out.Reset()
		out.Write(make([]byte, out.Cap()-free))
		sent := r.c.TriggerState(protocol.IfLink)
		assert.Equal(t, free >= protocol.BodySizes[protocol.CmdState], sent, "free=%d", free)
	}
}

func TestStatePublishRetriedUntilSent(t *testing.T) {
	r := newRig(t, nil)
	r.activate()

	// Occupy the gate with a stats poll, then change state
	require.True(t, r.c.TriggerStats(protocol.IfLink))
	r.c.Machine().Push(EvClaxonOn)
	r.c.Machine().Dispatch()
	frames := r.frames()
	assert.Empty(t, ofType(frames, protocol.CmdState), "gate closed")

	r.c.Step(context.Background())
	assert.Equal(t, StActive|StClaxon|StNeutral, lastState(t, r.frames()))
}

// The firmware only gates the periodic stats and gps triggers on the busy
// flag; state and sound frames interleave with a message in flight. The
// default policy gates every trigger.
func TestGatePolicyDivergence(t *testing.T) {
	tests := []struct {
		policy    protocol.GatePolicy
		soundSent bool
		gpsSent   bool
	}{
		{protocol.GateUniform, false, false},
		{protocol.GateLegacy, true, false},
		{protocol.GateNone, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			r := newRig(t, func(c *Config) { c.GatePolicy = tt.policy })
			require.True(t, r.c.TriggerStats(protocol.IfLink))
			assert.True(t, r.c.Port().Busy())
			assert.Equal(t, tt.soundSent, r.c.TriggerSound(protocol.SoundBeep, protocol.IfLink))
			assert.Equal(t, tt.gpsSent, r.c.TriggerGPS(protocol.IfLink))
		})
	}
}

func TestDebugInterfaceAlwaysAccepts(t *testing.T) {
	r := newRig(t, nil)
	out := r.c.Port().Out
	out.Write(make([]byte, out.Cap()))

	assert.True(t, r.c.TriggerState(protocol.IfDebug))
	assert.True(t, r.c.TriggerStats(protocol.IfDebug))
	assert.True(t, r.c.TriggerGPS(protocol.IfDebug))
	assert.True(t, r.c.TriggerSound(1, protocol.IfDebug))
	assert.False(t, r.c.TriggerState(protocol.IfExternal))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ACTIVE|NEUTRAL|BRAKE", StateString(StActive|StNeutral|StBrake))
	assert.Equal(t, "NONE", StateString(0))
	assert.Len(t, StateBitNames(), 12)
}
