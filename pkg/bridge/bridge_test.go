// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/tandem/pkg/protocol"
	"github.com/Thermoquad/tandem/pkg/ring"
)

type collector struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *collector) feed(p []byte) {
	c.mu.Lock()
	c.buf.Write(p)
	c.mu.Unlock()
}

func (c *collector) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

func TestServe_BothDirections(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	out := ring.NewByteQueue()
	in := &collector{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Serve(ctx, local, out, in.feed)
		done <- err
	}()

	// Outbound: queued bytes reach the remote end
	frame := protocol.NewSoundCommand(protocol.SoundBeep)
	out.Write(frame)
	got := make([]byte, len(frame))
	remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := io.ReadFull(remote, got)
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	// Inbound: remote bytes are fed
	poll := protocol.NewStatsPoll()
	_, err = remote.Write(poll)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return bytes.Equal(poll, in.bytes()) },
		2*time.Second, 5*time.Millisecond)

	cancel()
	local.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServe_EOFEndsCleanly(t *testing.T) {
	local, remote := net.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := Serve(context.Background(), local, ring.NewByteQueue(), func([]byte) {})
		done <- err
	}()

	remote.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

type failingRW struct{}

func (failingRW) Read(p []byte) (int, error)  { return 0, io.ErrClosedPipe }
func (failingRW) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestServe_ReadError(t *testing.T) {
	_, err := Serve(context.Background(), failingRW{}, ring.NewByteQueue(), func([]byte) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestServe_ClosedAfterCancel(t *testing.T) {
	// A read failing on a closed transport after cancellation is a clean stop
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		out := ring.NewByteQueue()
		out.Write(protocol.NewStatsPoll())

		_, err := Serve(ctx, failingRW{}, out, func([]byte) {})
		require.NoError(t, err, "round %d", i)
	}
}
