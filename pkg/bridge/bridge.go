// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge attaches a controller's byte queues to a stream
// transport such as a serial port or a WebSocket connection.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/ring"
)

// DrainInterval is how often queued outbound bytes are flushed
const DrainInterval = time.Millisecond

// Stats counts bridged bytes
type Stats struct {
	BytesIn  uint64
	BytesOut uint64
}

// Serve copies bytes read from rw into feed and writes bytes queued in out
// to rw until ctx is done, rw reaches EOF or either direction fails.
// Serve must be the only consumer of out.
//
// A read blocked in rw is not interrupted by ctx; callers close rw after
// cancelling to release it.
func Serve(ctx context.Context, rw io.ReadWriter, out *ring.ByteQueue, feed func([]byte)) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stats Stats
	var bytesIn atomic.Uint64
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := rw.Read(buf)
			if n > 0 {
				feed(buf[:n])
				bytesIn.Add(uint64(n))
			}
			if err != nil {
				readErr <- err
				return
			}
			if ctx.Err() != nil {
				readErr <- nil
				return
			}
		}
	}()

	ticker := time.NewTicker(DrainInterval)
	defer ticker.Stop()
	buf := make([]byte, 0, ring.ByteQueueSlots)

	for {
		stats.BytesIn = bytesIn.Load()
		select {
		case <-ctx.Done():
			return stats, nil
		case err := <-readErr:
			stats.BytesIn = bytesIn.Load()
			if err == nil || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return stats, nil
			}
			return stats, fmt.Errorf("bridge read failed: %w", err)
		case <-ticker.C:
			buf = buf[:0]
			for {
				b, ok := out.Pop()
				if !ok {
					break
				}
				buf = append(buf, b)
			}
			if len(buf) == 0 {
				continue
			}
			if _, err := rw.Write(buf); err != nil {
				if ctx.Err() != nil {
					return stats, nil
				}
				return stats, fmt.Errorf("bridge write failed: %w", err)
			}
			stats.BytesOut += uint64(len(buf))
			if glog.V(2) {
				glog.Infof("bridge: wrote %d bytes", len(buf))
			}
		}
	}
}
