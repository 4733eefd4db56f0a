// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"errors"

	"github.com/Thermoquad/tandem/pkg/ring"
)

// Parser states
const (
	stateIdle = iota
	stateStart
	stateCollecting
)

// Recovered framing conditions. The parser has already reset itself when
// one of these is returned; callers only use them for diagnostics.
var (
	ErrUnknownCommand = errors.New("unknown command id after START")
	ErrOverflow       = errors.New("frame exceeds scratch buffer")
	ErrRestart        = errors.New("START inside frame, previous frame discarded")
)

// ParserStats counts every parser outcome
type ParserStats struct {
	Frames      uint64
	Restarts    uint64
	Unknown     uint64
	Overflows   uint64
	IdleDropped uint64 // bytes discarded while waiting for START
}

// Parser implements the frame recognizer state machine
type Parser struct {
	state   int
	buffer  []byte
	index   int
	isValid func(CommandID) bool
	stats   ParserStats
}

// NewParser creates a parser accepting the identifiers valid reports.
// A nil valid accepts every known command id.
func NewParser(valid func(CommandID) bool) *Parser {
	if valid == nil {
		valid = CommandID.Valid
	}
	return &Parser{
		state:   stateIdle,
		buffer:  make([]byte, ScratchSize),
		isValid: valid,
	}
}

// Reset returns the parser to idle
func (p *Parser) Reset() {
	p.state = stateIdle
	p.index = 0
}

// Idle reports whether the parser is waiting for a START byte
func (p *Parser) Idle() bool {
	return p.state == stateIdle
}

// Stats returns the outcome counters
func (p *Parser) Stats() ParserStats {
	return p.stats
}

// DecodeByte processes a single byte through the state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// A non-nil error describes a frame that was abandoned.
func (p *Parser) DecodeByte(b byte) (*Frame, error) {
	switch p.state {
	case stateIdle:
		if b == StartByte {
			p.state = stateStart
		} else {
			p.stats.IdleDropped++
		}
		return nil, nil

	case stateStart:
		id := CommandID(b)
		if !p.isValid(id) {
			p.stats.Unknown++
			p.Reset()
			return nil, ErrUnknownCommand
		}
		// The identifier is always payload byte 0
		p.index = 0
		p.buffer[p.index] = b
		p.index++
		p.state = stateCollecting
		return nil, nil

	case stateCollecting:
		switch {
		case b == StopByte:
			payload := make([]byte, p.index-1)
			copy(payload, p.buffer[1:p.index])
			frame := NewFrame(CommandID(p.buffer[0]), payload)
			p.stats.Frames++
			p.Reset()
			return frame, nil
		case b == StartByte:
			p.stats.Restarts++
			p.index = 0
			p.state = stateStart
			return nil, ErrRestart
		case p.index < ScratchSize-1:
			p.buffer[p.index] = b
			p.index++
			return nil, nil
		default:
			p.stats.Overflows++
			p.Reset()
			return nil, ErrOverflow
		}

	default:
		p.Reset()
		return nil, nil
	}
}

// Feed is DecodeByte without the diagnostic error
func (p *Parser) Feed(b byte) *Frame {
	f, _ := p.DecodeByte(b)
	return f
}

// Drain feeds every byte available in q, calling fn for each completed
// frame. Returns the number of frames.
func (p *Parser) Drain(q *ring.ByteQueue, fn func(*Frame)) int {
	n := 0
	for {
		b, ok := q.Pop()
		if !ok {
			return n
		}
		if f := p.Feed(b); f != nil {
			n++
			if fn != nil {
				fn(f)
			}
		}
	}
}
