// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

// Command builder functions return complete wire frames for the commands
// external clients send. They wrap Encode so the payload layout lives in
// one place.

// NewStatsPoll creates an empty STATS frame, the request Body sends each
// poll period
func NewStatsPoll() []byte {
	return Encode(CmdStats, nil)
}

// NewSoundCommand creates a SOUND frame.
// Codes: 0 alarm, 1-5 songs, SoundBeep, SoundOff, SoundRandom.
func NewSoundCommand(code uint8) []byte {
	return EncodeString(CmdSound, EncodeSound(code))
}

// NewSenseCommand creates a SENSE frame carrying the dynamic sense status.
// Bit n corresponds to the sense whose mask bit is n.
func NewSenseCommand(status uint16) []byte {
	return EncodeString(CmdSense, EncodeSense(status))
}

// NewStateFrame creates a STATE frame as Body publishes it
func NewStateFrame(ts DateTime, word uint16) []byte {
	return EncodeString(CmdState, EncodeState(ts, word))
}

// NewStatsReply creates the STATS frame Engine answers a poll with
func NewStatsReply(s Stats) []byte {
	return EncodeString(CmdStats, s.Encode())
}

// NewMsgCommand creates a MSG frame with free text. Control bytes are
// stripped.
func NewMsgCommand(text string) []byte {
	clean := make([]byte, 0, len(text))
	for i := 0; i < len(text) && len(clean) < MaxPayload; i++ {
		c := text[i]
		if c == StartByte || c == StopByte || c == NoopByte {
			continue
		}
		clean = append(clean, c)
	}
	return Encode(CmdMsg, clean)
}
