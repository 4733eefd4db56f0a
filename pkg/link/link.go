// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link moves bytes between the two controllers over a shared
// full-duplex shift register. Each clocked exchange swaps exactly one byte
// in each direction. The Initiator decides when an exchange happens; the
// Responder answers from its interrupt context.
package link

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Thermoquad/tandem/pkg/protocol"
	"github.com/Thermoquad/tandem/pkg/ring"
)

// Role is the current link role of a controller
type Role int32

const (
	RoleDisabled Role = iota
	RoleResponder
	RoleInitiator
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case RoleDisabled:
		return "disabled"
	case RoleResponder:
		return "responder"
	case RoleInitiator:
		return "initiator"
	default:
		return "unknown"
	}
}

// ErrLinkTimeout is returned when an exchange did not complete in time
var ErrLinkTimeout = errors.New("link exchange timed out")

// Exchanger performs one blocking byte exchange with the peer.
// Implementations must return once ctx is done.
type Exchanger interface {
	Exchange(ctx context.Context, out byte) (byte, error)
}

// Stats counts link activity
type Stats struct {
	Exchanges uint64
	Received  uint64 // non-NOOP bytes stored
	Timeouts  uint64
	PowerUps  uint64
}

//////////////////////////////////////////////////////////////
// Responder
//////////////////////////////////////////////////////////////

// Responder is the always-on side. Exchange is its interrupt handler.
type Responder struct {
	out *ring.ByteQueue
	in  *ring.ByteQueue

	exchanges atomic.Uint64
	received  atomic.Uint64
}

// NewResponder creates a responder draining out and filling in
func NewResponder(out, in *ring.ByteQueue) *Responder {
	return &Responder{out: out, in: in}
}

// Role always reports RoleResponder
func (r *Responder) Role() Role {
	return RoleResponder
}

// Active reports whether the link is driven by this side; a responder
// never drives it
func (r *Responder) Active() bool {
	return false
}

// Exchange handles one clocked byte: the received byte is stored unless it
// is the idle filler, and the reply is the head of the outbound queue or
// NOOP when there is nothing to say.
func (r *Responder) Exchange(in byte) byte {
	r.exchanges.Add(1)
	if in != protocol.NoopByte {
		r.in.Push(in)
		r.received.Add(1)
	}
	return r.out.PopOr(protocol.NoopByte)
}

// Stats returns the exchange counters
func (r *Responder) Stats() Stats {
	return Stats{
		Exchanges: r.exchanges.Load(),
		Received:  r.received.Load(),
	}
}
