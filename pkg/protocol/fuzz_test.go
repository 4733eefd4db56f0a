// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomPayload returns printable ASCII, never a control byte
func randomPayload(rng *rand.Rand, maxLen int) []byte {
	n := rng.Intn(maxLen + 1)
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(0x20 + rng.Intn(0x5F))
	}
	return out
}

// ============================================================
// Parser Fuzz Tests
// ============================================================

func TestFuzz_ParserRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	p := NewParser(nil)
	for i := 0; i < rounds; i++ {
		n := rng.Intn(300)
		for j := 0; j < n; j++ {
			f := p.Feed(byte(rng.Intn(256)))
			if f == nil {
				continue
			}
			if !f.ID().Valid() {
				t.Fatalf("Round %d: frame with invalid id 0x%02X", i, byte(f.ID()))
			}
			if len(f.Payload()) > MaxPayload {
				t.Fatalf("Round %d: payload %d exceeds max %d", i, len(f.Payload()), MaxPayload)
			}
			for _, b := range f.Payload() {
				if b == StartByte || b == StopByte {
					t.Fatalf("Round %d: control byte 0x%02X inside payload", i, b)
				}
			}
		}
	}
}

func TestFuzz_ParserResyncAfterGarbage(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		p := NewParser(nil)

		// Garbage may leave the parser in any state. A STOP closes
		// whatever was open: a START right after a dangling START is
		// rejected as an id, so the frame would be lost otherwise.
		n := rng.Intn(200)
		for j := 0; j < n; j++ {
			p.Feed(byte(rng.Intn(256)))
		}
		p.Feed(StopByte)
		if !p.Idle() {
			t.Fatalf("Round %d: STOP did not return parser to idle", i)
		}

		id := AllCommands[rng.Intn(len(AllCommands))]
		payload := randomPayload(rng, MaxPayload)

		var got *Frame
		for _, b := range Encode(id, payload) {
			if f := p.Feed(b); f != nil {
				got = f
			}
		}
		if got == nil {
			t.Fatalf("Round %d: frame %s (%d bytes) not recovered after %d garbage bytes", i, id, len(payload), n)
		}
		if got.ID() != id || string(got.Payload()) != string(payload) {
			t.Fatalf("Round %d: got %s %q, want %s %q", i, got.ID(), got.Payload(), id, payload)
		}
	}
}

func TestFuzz_StateRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		word := uint16(rng.Intn(1 << 16))
		ts := DateTime{
			Weekday:      uint8(1 + rng.Intn(7)),
			Day:          uint8(1 + rng.Intn(31)),
			Month:        uint8(1 + rng.Intn(12)),
			Year:         uint8(rng.Intn(100)),
			Hours:        uint8(rng.Intn(24)),
			Minutes:      uint8(rng.Intn(60)),
			Seconds:      uint8(rng.Intn(60)),
			Milliseconds: uint16(rng.Intn(1000)),
		}
		gotTS, got, err := DecodeState(EncodeState(ts, word))
		if err != nil {
			t.Fatalf("Round %d: decode 0x%04X: %v", i, word, err)
		}
		if got != word || gotTS != ts {
			t.Fatalf("Round %d: got 0x%04X %+v, want 0x%04X %+v", i, got, gotTS, word, ts)
		}
	}
}

func TestFuzz_PortNeverOverflows(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	ids := []CommandID{CmdState, CmdStats, CmdGPS, CmdSound}
	p := NewPort("fuzz", IfLink, NewRegistry(BodySizes))
	p.SetGatePolicy(GateNone)

	for i := 0; i < rounds; i++ {
		id := ids[rng.Intn(len(ids))]
		var payload string
		switch id {
		case CmdState:
			payload = EncodeState(DateTime{}, uint16(rng.Intn(1<<16)))
		case CmdGPS:
			payload = EncodeGPS(DateTime{}, &GPSFix{Fix: uint8(rng.Intn(4)), Latitude: rng.Int31()})
		case CmdSound:
			payload = EncodeSound(uint8(rng.Intn(256)))
		}
		p.SendString(id, payload)

		// Consumer drains a random amount
		for k := rng.Intn(64); k > 0; k-- {
			p.Out.Pop()
		}
	}
	if p.Out.Dropped() != 0 {
		t.Errorf("Admission control let %d bytes overflow", p.Out.Dropped())
	}
}
