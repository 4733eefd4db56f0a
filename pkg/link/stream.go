// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

// readTimeouter is implemented by serial ports
type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// StreamExchanger runs the link over a byte stream, usually a serial
// cable between two bench boards: every exchange writes one byte and
// waits for the peer's one byte reply.
type StreamExchanger struct {
	rw  io.ReadWriter
	buf [1]byte
}

// NewStreamExchanger wraps rw. When rw supports SetReadTimeout the
// context deadline bounds each read.
func NewStreamExchanger(rw io.ReadWriter) *StreamExchanger {
	return &StreamExchanger{rw: rw}
}

// Exchange writes out and reads the reply
func (s *StreamExchanger) Exchange(ctx context.Context, out byte) (byte, error) {
	if err := ctx.Err(); err != nil {
		return protocol.NoopByte, ErrLinkTimeout
	}
	if rt, ok := s.rw.(readTimeouter); ok {
		if deadline, ok := ctx.Deadline(); ok {
			if err := rt.SetReadTimeout(time.Until(deadline)); err != nil {
				return protocol.NoopByte, fmt.Errorf("failed to set read timeout: %w", err)
			}
		}
	}

	s.buf[0] = out
	if _, err := s.rw.Write(s.buf[:]); err != nil {
		return protocol.NoopByte, fmt.Errorf("failed to write link byte: %w", err)
	}

	n, err := s.rw.Read(s.buf[:])
	if err != nil {
		return protocol.NoopByte, fmt.Errorf("failed to read link byte: %w", err)
	}
	// Serial ports report a read timeout as zero bytes without error
	if n == 0 {
		return protocol.NoopByte, ErrLinkTimeout
	}
	return s.buf[0], nil
}

// ServeStream answers every byte read from rw through r until ctx is done
// or the stream fails. It is the responder's interrupt loop for a
// StreamExchanger peer.
func ServeStream(ctx context.Context, rw io.ReadWriter, r *Responder) error {
	var buf [1]byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rw.Read(buf[:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read link byte: %w", err)
		}
		if n == 0 {
			continue
		}
		buf[0] = r.Exchange(buf[0])
		if _, err := rw.Write(buf[:]); err != nil {
			return fmt.Errorf("failed to write link byte: %w", err)
		}
	}
}
