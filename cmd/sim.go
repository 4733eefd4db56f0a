// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/bridge"
	"github.com/Thermoquad/tandem/pkg/config"
	"github.com/Thermoquad/tandem/pkg/engine"
	"github.com/Thermoquad/tandem/pkg/hal"
	"github.com/Thermoquad/tandem/pkg/link"
	"github.com/Thermoquad/tandem/pkg/protocol"
	"github.com/Thermoquad/tandem/pkg/relay"
)

// simOptions configures the in-process controllers
type simOptions struct {
	gate    protocol.GatePolicy
	trace   bool
	useGPIO bool   // drive pins from the gpio section of the configuration
	gps     string // fixed position fix, empty for none
}

// simulator runs Body and Engine in one process, joined by a link.Bus.
// Pins are software latches unless GPIO is enabled; relay outputs are
// always recorded in relays.
type simulator struct {
	store  *config.Store
	senses *hal.SenseLatch
	gears  *hal.GearLatch
	relays *hal.RelayBank
	adc    *hal.ADCBank
	gpio   *hal.GPIO

	body   *body.Controller
	engine *engine.Controller
	bus    *link.Bus
	fanout *relay.Fanout
}

// staticGPS reports the same fix forever
type staticGPS struct{ fix *protocol.GPSFix }

func (g staticGPS) Fix() *protocol.GPSFix { return g.fix }

// relayTee mirrors relay outputs to several drivers
type relayTee []body.Relays

func (t relayTee) Set(r body.Relay, on bool) {
	for _, d := range t {
		d.Set(r, on)
	}
}

// gateNames maps --gate values to policies
var gateNames = map[string]protocol.GatePolicy{
	protocol.GateUniform.String(): protocol.GateUniform,
	protocol.GateLegacy.String():  protocol.GateLegacy,
	protocol.GateNone.String():    protocol.GateNone,
}

func parseGate(s string) (protocol.GatePolicy, error) {
	g, ok := gateNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown gate policy %q (use uniform, legacy, none)", s)
	}
	return g, nil
}

// openSinks connects the telemetry sinks enabled in cfg. A sink that
// fails to connect is skipped with a warning.
func openSinks(ctx context.Context, cfg config.RelayConfig) []relay.Sink {
	var sinks []relay.Sink
	if cfg.MQTT.Broker != "" {
		s, err := relay.NewMQTTSink(cfg.MQTT)
		if err != nil {
			glog.Warningf("mqtt disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Redis.Addr != "" {
		s, err := relay.NewRedisSink(ctx, cfg.Redis)
		if err != nil {
			glog.Warningf("redis disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// newSimulator opens the settings store at path and builds both
// controllers. observe, when set, sees every frame Engine relays.
func newSimulator(ctx context.Context, path string, opts simOptions, observe func(*protocol.Frame)) (*simulator, error) {
	store, err := config.OpenStore(path)
	if err != nil {
		return nil, err
	}
	cfg := store.Config()

	s := &simulator{
		store:  store,
		senses: &hal.SenseLatch{},
		gears:  &hal.GearLatch{},
		relays: &hal.RelayBank{},
		adc:    hal.NewADCBank(engine.IdleADC),
	}

	bodyHW := body.Hardware{Senses: s.senses, Relays: s.relays}
	engineHW := engine.Hardware{Gears: s.gears, ADC: s.adc, Buzzer: engine.LogBuzzer{}}

	if opts.useGPIO && cfg.GPIO.Chip != "" {
		g, err := hal.OpenGPIO(cfg.GPIO)
		if err != nil {
			return nil, err
		}
		s.gpio = g
		bodyHW.Senses = g
		bodyHW.Relays = relayTee{s.relays, g}
		engineHW.Gears = g
		glog.Infof("simulate: pins on %s", cfg.GPIO.Chip)
	}

	if opts.gps != "" {
		fix, err := protocol.ParseGPSFix(opts.gps)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("invalid --gps: %w", err)
		}
		bodyHW.GPS = staticGPS{fix: &fix}
	}

	s.fanout = relay.NewFanout(openSinks(ctx, cfg.Relay)...)
	s.engine = engine.New(engine.Config{
		Hardware: engineHW,
		Observer: engine.ObserverFunc(func(f *protocol.Frame) {
			s.fanout.Observe(f)
			if observe != nil {
				observe(f)
			}
		}),
		Trace: opts.trace,
	})
	s.bus = link.NewBus(s.engine.Responder())

	s.body, err = body.New(body.Config{
		Hardware:        bodyHW,
		Store:           store,
		Exchanger:       s.bus,
		ExchangeTimeout: time.Second,
		GatePolicy:      opts.gate,
		Trace:           opts.trace,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// run drives every component until ctx is done or one fails. When ext is
// set, Engine's client port is bridged to it; ext is closed on return if
// it is an io.Closer.
func (s *simulator) run(ctx context.Context, ext io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 5)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	start("bus", s.bus.Run)
	start("engine", s.engine.Run)
	start("body", s.body.Run)
	start("relay", s.fanout.Run)
	if ext != nil {
		start("bridge", func(ctx context.Context) error {
			st, err := bridge.Serve(ctx, ext, s.engine.External().Out, s.engine.FeedExternal)
			glog.Infof("simulate: bridge closed, %d bytes in, %d bytes out", st.BytesIn, st.BytesOut)
			if err == nil && ctx.Err() == nil {
				err = io.EOF
			}
			return err
		})
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancel()
	if c, ok := ext.(io.Closer); ok {
		c.Close()
	}
	wg.Wait()

	if errors.Is(err, io.EOF) {
		glog.Warning("simulate: client transport closed")
	}
	return err
}

// close releases the pins and the sinks
func (s *simulator) close() {
	if s.fanout != nil {
		if err := s.fanout.Close(); err != nil {
			glog.Warningf("simulate: %v", err)
		}
	}
	if s.gpio != nil {
		s.gpio.Close()
	}
}
