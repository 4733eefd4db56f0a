// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/protocol"
	"github.com/Thermoquad/tandem/pkg/ring"
)

// DefaultExchangeTimeout bounds a single byte exchange
const DefaultExchangeTimeout = 5 * time.Millisecond

// PinMux hands the shared pins between the link and other functions.
// LinkUp is called before the first exchange after a power down, LinkDown
// when the link goes idle.
type PinMux interface {
	LinkUp()
	LinkDown()
}

// InitiatorConfig holds optional initiator settings
type InitiatorConfig struct {
	Timeout time.Duration // per exchange, DefaultExchangeTimeout when zero
	PinMux  PinMux
}

// Initiator is the side that clocks the link. Poll is called once per
// control loop iteration from the owning goroutine; Active may be read
// from anywhere.
type Initiator struct {
	out *ring.ByteQueue
	in  *ring.ByteQueue
	ex  Exchanger
	cfg InitiatorConfig

	role   atomic.Int32
	lastIn byte
	stats  Stats
}

// NewInitiator creates a powered-down initiator
func NewInitiator(out, in *ring.ByteQueue, ex Exchanger, cfg InitiatorConfig) *Initiator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExchangeTimeout
	}
	return &Initiator{
		out:    out,
		in:     in,
		ex:     ex,
		cfg:    cfg,
		lastIn: protocol.NoopByte,
	}
}

// Role returns RoleInitiator while powered, RoleDisabled otherwise
func (i *Initiator) Role() Role {
	return Role(i.role.Load())
}

// Active reports whether the link currently owns the shared pins
func (i *Initiator) Active() bool {
	return i.Role() == RoleInitiator
}

// Stats returns the exchange counters
func (i *Initiator) Stats() Stats {
	return i.stats
}

// Pending reports whether Poll would exchange a byte: there is outbound
// data, or the responder was still mid-reply on the last exchange
func (i *Initiator) Pending() bool {
	return !i.out.Empty() || i.lastIn != protocol.NoopByte
}

// Poll performs at most one byte exchange. When nothing is pending the
// link is powered down. The only error is a failed exchange, after which
// the link stays up and the next Poll retries with the next byte; a lost
// byte is recovered by the peer's parser.
func (i *Initiator) Poll(ctx context.Context) error {
	if !i.Pending() {
		if i.Active() {
			i.role.Store(int32(RoleDisabled))
			if i.cfg.PinMux != nil {
				i.cfg.PinMux.LinkDown()
			}
			if glog.V(2) {
				glog.Info("link: powered down")
			}
		}
		return nil
	}

	if !i.Active() {
		if i.cfg.PinMux != nil {
			i.cfg.PinMux.LinkUp()
		}
		i.role.Store(int32(RoleInitiator))
		i.stats.PowerUps++
		if glog.V(2) {
			glog.Info("link: powered up")
		}
	}

	out := i.out.PopOr(protocol.NoopByte)
	xctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	in, err := i.ex.Exchange(xctx, out)
	cancel()
	i.stats.Exchanges++
	if err != nil {
		i.stats.Timeouts++
		i.lastIn = protocol.NoopByte
		return fmt.Errorf("exchange of 0x%02X failed: %w", out, err)
	}

	i.lastIn = in
	if in != protocol.NoopByte {
		i.in.Push(in)
		i.stats.Received++
	}
	return nil
}
