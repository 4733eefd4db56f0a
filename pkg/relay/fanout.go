// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

// PublishTimeout bounds one sink publish
const PublishTimeout = 2 * time.Second

// Sink receives decoded telemetry
type Sink interface {
	Name() string
	Publish(ctx context.Context, s Snapshot) error
	Close() error
}

// FanoutStats counts fanout outcomes
type FanoutStats struct {
	Observed  uint64
	Dropped   uint64 // queue full
	Published uint64
	Failed    uint64
}

// Fanout decodes relayed frames and hands them to every sink from its own
// goroutine. Observe never blocks; when the sinks fall behind, snapshots
// are dropped.
type Fanout struct {
	sinks []Sink
	queue chan Snapshot

	observed  atomic.Uint64
	dropped   atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewFanout creates a fanout over sinks
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{
		sinks: sinks,
		queue: make(chan Snapshot, 64),
	}
}

// Observe decodes f and queues it for the sinks. Frames without telemetry
// are ignored.
func (f *Fanout) Observe(fr *protocol.Frame) {
	s, err := FromFrame(fr)
	if err != nil {
		if glog.V(2) {
			glog.Infof("relay: %v", err)
		}
		return
	}
	f.observed.Add(1)
	select {
	case f.queue <- s:
	default:
		f.dropped.Add(1)
	}
}

// Run publishes queued snapshots until ctx is done
func (f *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-f.queue:
			f.publish(ctx, s)
		}
	}
}

func (f *Fanout) publish(ctx context.Context, s Snapshot) {
	for _, sink := range f.sinks {
		pctx, cancel := context.WithTimeout(ctx, PublishTimeout)
		err := sink.Publish(pctx, s)
		cancel()
		if err != nil {
			f.failed.Add(1)
			glog.Warningf("relay: %s publish of %s failed: %v", sink.Name(), s.Command, err)
			continue
		}
		f.published.Add(1)
	}
}

// Stats returns the fanout counters
func (f *Fanout) Stats() FanoutStats {
	return FanoutStats{
		Observed:  f.observed.Load(),
		Dropped:   f.dropped.Load(),
		Published: f.published.Load(),
		Failed:    f.failed.Load(),
	}
}

// Close closes every sink
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
