// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	DecodeErrors    uint64
	Restarts        uint64
	UnknownIDs      uint64
	Overflows       uint64
	MalformedFrames uint64
	LengthMismatch  uint64
	NonNumeric      uint64
	AnomalousValues uint64
	PerCommand      map[CommandID]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		PerCommand:     make(map[CommandID]uint64),
	}
}

// Update updates statistics based on a frame or parser error and the
// frame's validation errors
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++

	if decodeErr != nil {
		s.DecodeErrors++
		switch {
		case errors.Is(decodeErr, ErrRestart):
			s.Restarts++
		case errors.Is(decodeErr, ErrUnknownCommand):
			s.UnknownIDs++
		case errors.Is(decodeErr, ErrOverflow):
			s.Overflows++
		}
		s.LastUpdateTime = time.Now()
		return
	}

	if frame != nil {
		s.PerCommand[frame.ID()]++
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case ANOMALY_LENGTH_MISMATCH:
				s.LengthMismatch++
				s.MalformedFrames++
			case ANOMALY_NON_NUMERIC:
				s.NonNumeric++
				s.MalformedFrames++
			default:
				s.AnomalousValues++
			}
		}
	} else {
		s.ValidFrames++
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.DecodeErrors + s.MalformedFrames + s.AnomalousValues
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(total)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()
	elapsed := time.Since(s.StartTime)

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Total Frames:    %8d\n", s.TotalFrames)
	fmt.Fprintf(&b, "Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames, s.TotalFrames))

	if s.DecodeErrors > 0 {
		fmt.Fprintf(&b, "Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors, s.TotalFrames))
		if s.Restarts > 0 {
			fmt.Fprintf(&b, "  Restarts:         %5d\n", s.Restarts)
		}
		if s.UnknownIDs > 0 {
			fmt.Fprintf(&b, "  Unknown IDs:      %5d\n", s.UnknownIDs)
		}
		if s.Overflows > 0 {
			fmt.Fprintf(&b, "  Overflows:        %5d\n", s.Overflows)
		}
	}
	if s.MalformedFrames > 0 {
		fmt.Fprintf(&b, "Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, percent(s.MalformedFrames, s.TotalFrames))
		if s.LengthMismatch > 0 {
			fmt.Fprintf(&b, "  Length Mismatch:  %5d\n", s.LengthMismatch)
		}
		if s.NonNumeric > 0 {
			fmt.Fprintf(&b, "  Non-numeric:      %5d\n", s.NonNumeric)
		}
	}
	if s.AnomalousValues > 0 {
		fmt.Fprintf(&b, "Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, percent(s.AnomalousValues, s.TotalFrames))
	}

	for _, id := range AllCommands {
		if n := s.PerCommand[id]; n > 0 {
			fmt.Fprintf(&b, "  %-8s         %5d\n", id, n)
		}
	}

	fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
