// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

// soundNames are the named sound codes accepted on the command line
var soundNames = map[string]uint8{
	"alarm":  0,
	"beep":   protocol.SoundBeep,
	"off":    protocol.SoundOff,
	"random": protocol.SoundRandom,
}

// parseSound accepts a code, a sound name or songN
func parseSound(s string) (uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, ok := soundNames[s]; ok {
		return code, nil
	}
	s = strings.TrimPrefix(s, "song")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid sound %q (use 0-5, beep, off, random)", s)
	}
	code := uint8(n)
	if code >= protocol.SongCount && code < protocol.SoundBeep {
		return 0, fmt.Errorf("unknown sound code %d", code)
	}
	return code, nil
}

// parseSenseWord accepts a number (0x prefix for hex), "none", or a comma
// separated list of sense names
func parseSenseWord(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		return uint16(n), nil
	}
	var word uint16
	for _, name := range strings.Split(s, ",") {
		flag, ok := body.SenseNames[strings.TrimSpace(name)]
		if !ok {
			return 0, fmt.Errorf("unknown sense %q (known: %s)", name, strings.Join(senseNameList(), ", "))
		}
		word |= flag
	}
	return word, nil
}

func senseNameList() []string {
	names := make([]string, 0, len(body.SenseNames))
	for n := range body.SenseNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// buildFrame turns a client command line into a wire frame:
//
//	stats             poll Engine telemetry
//	sound <code>      play a sound on Engine
//	sense <word>      set Body's dynamic sense status
//	msg <text>        free text
func buildFrame(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command given")
	}
	name, rest := strings.ToLower(args[0]), strings.Join(args[1:], " ")

	switch name {
	case "stats", "poll":
		return protocol.NewStatsPoll(), nil
	case "sound":
		code, err := parseSound(rest)
		if err != nil {
			return nil, err
		}
		return protocol.NewSoundCommand(code), nil
	case "sense":
		word, err := parseSenseWord(rest)
		if err != nil {
			return nil, err
		}
		return protocol.NewSenseCommand(word), nil
	case "msg":
		if rest == "" {
			return nil, fmt.Errorf("msg needs text")
		}
		return protocol.NewMsgCommand(rest), nil
	}
	return nil, fmt.Errorf("unknown command %q (use stats, sound, sense, msg)", args[0])
}
