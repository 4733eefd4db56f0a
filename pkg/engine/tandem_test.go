// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/engine"
	"github.com/Thermoquad/tandem/pkg/link"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

type gearPin int

func (g gearPin) Engaged(gear int) bool { return int(g) == gear }

type ignition bool

func (i ignition) Asserted(sense uint16) bool { return bool(i) && sense == config.SenseIgn }

// Both controllers stepped from one goroutine with the responder's
// interrupt handler on the bus goroutine
func TestTandem_OverBus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var relayed []*protocol.Frame
	e := engine.New(engine.Config{
		Hardware: engine.Hardware{Gears: gearPin(2), Buzzer: engine.LogBuzzer{}},
		Observer: engine.ObserverFunc(func(f *protocol.Frame) { relayed = append(relayed, f) }),
	})
	bus := link.NewBus(e.Responder())
	go bus.Run(ctx)

	b, err := body.New(body.Config{
		Hardware:        body.Hardware{Senses: ignition(true)},
		Store:           config.NewStore("", nil),
		Exchanger:       bus,
		ExchangeTimeout: time.Second,
	})
	require.NoError(t, err)

	for i := 0; i < 400 && b.StatsReceived() < 3; i++ {
		b.Tick()
		e.Tick()
		b.Step(ctx)
		e.Step()
		for n := 0; n < 256 && b.Pending(); n++ {
			b.Step(ctx)
			e.Step()
		}
	}

	require.GreaterOrEqual(t, b.StatsReceived(), uint64(3))
	st, ok := b.Engine()
	require.True(t, ok)
	assert.Equal(t, uint8(2), st.Gear)
	assert.Equal(t, uint32(11995), st.Voltage)

	// Ignition came up, gear 2 keeps Body out of neutral
	assert.True(t, b.State().Has(body.StActive))
	assert.False(t, b.State().Has(body.StNeutral))
	assert.Equal(t, protocol.SoundRandom, e.LastSound())

	// Body's frames reached the client side
	var states, data int
	for _, f := range relayed {
		switch f.ID() {
		case protocol.CmdState:
			states++
		case protocol.CmdData:
			data++
		}
	}
	assert.Positive(t, states)
	assert.Positive(t, data)
	assert.Zero(t, b.LinkErrors())
}
