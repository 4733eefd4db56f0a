// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

type busRequest struct {
	seq uint64
	out byte
}

type busReply struct {
	seq uint64
	in  byte
}

// Bus joins an Initiator to a Responder inside one process. The
// responder's interrupt handler runs on the goroutine executing Run, so
// the two controllers only share the ring buffers, as on hardware.
type Bus struct {
	responder *Responder
	req       chan busRequest
	reply     chan busReply
	seq       uint64
}

// NewBus creates a bus for r. Run must be started before exchanges
// complete; until then every exchange times out.
func NewBus(r *Responder) *Bus {
	return &Bus{
		responder: r,
		req:       make(chan busRequest),
		reply:     make(chan busReply, 1),
	}
}

// Run services exchanges until ctx is done
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-b.req:
			in := b.responder.Exchange(r.out)
			select {
			case b.reply <- busReply{seq: r.seq, in: in}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Exchange clocks one byte through the responder. Must be called from a
// single goroutine.
func (b *Bus) Exchange(ctx context.Context, out byte) (byte, error) {
	b.seq++
	seq := b.seq

	select {
	case b.req <- busRequest{seq: seq, out: out}:
	case <-ctx.Done():
		return protocol.NoopByte, ErrLinkTimeout
	}

	for {
		select {
		case r := <-b.reply:
			// A reply to an exchange that already timed out is stale
			if r.seq == seq {
				return r.in, nil
			}
		case <-ctx.Done():
			return protocol.NoopByte, ErrLinkTimeout
		}
	}
}
