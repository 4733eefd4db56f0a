// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/Thermoquad/tandem/pkg/protocol"
)

// frameEvent is one parser outcome: a frame with its validation result,
// or a framing error
type frameEvent struct {
	frame            *protocol.Frame
	decodeErr        error
	validationErrors []protocol.ValidationError
}

// syncEvent marks the first complete frame
type syncEvent struct {
	invalidBytes int
}

// frameSync decodes a byte stream and reports framing errors only once
// the first complete frame was seen. Bytes before then are counted.
type frameSync struct {
	parser       *protocol.Parser
	synchronized bool
	invalidBytes int
}

func newFrameSync() *frameSync {
	return &frameSync{parser: protocol.NewParser(nil)}
}

// decode feeds p through the parser. onSync is called once, before the
// first event.
func (s *frameSync) decode(p []byte, onSync func(syncEvent), emit func(frameEvent)) {
	for _, b := range p {
		frame, err := s.parser.DecodeByte(b)
		switch {
		case err != nil:
			if !s.synchronized {
				s.invalidBytes++
				continue
			}
			emit(frameEvent{decodeErr: err})
		case frame != nil:
			if !s.synchronized {
				s.synchronized = true
				s.invalidBytes += int(s.parser.Stats().IdleDropped)
				onSync(syncEvent{invalidBytes: s.invalidBytes})
			}
			emit(frameEvent{frame: frame, validationErrors: protocol.ValidateFrame(frame)})
		}
	}
}

// readFrames reads conn until it closes or ctx is done, emitting decoded
// frames. Transient read errors (serial) are retried after a short pause.
// It returns nil when ctx ended the read and the read error otherwise.
func readFrames(ctx context.Context, conn Connection, onSync func(syncEvent), emit func(frameEvent)) error {
	s := newFrameSync()
	buf := make([]byte, 128)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if connectionClosed(err) {
				return err
			}
			glog.Warningf("read error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.decode(buf[:n], onSync, emit)
	}
}
