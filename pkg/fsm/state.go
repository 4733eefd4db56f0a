// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fsm

import "fmt"

// StateWord is a 16-bit set of overlapping state flags
type StateWord uint16

// Has reports whether every bit of mask is set
func (s StateWord) Has(mask StateWord) bool {
	return s&mask == mask
}

// Any reports whether at least one bit of mask is set
func (s StateWord) Any(mask StateWord) bool {
	return s&mask != 0
}

// None reports whether no bit of mask is set
func (s StateWord) None(mask StateWord) bool {
	return s&mask == 0
}

// Within reports whether s only has bits from mask set
func (s StateWord) Within(mask StateWord) bool {
	return s&^mask == 0
}

// High returns the upper byte
func (s StateWord) High() uint8 { return uint8(s >> 8) }

// Low returns the lower byte
func (s StateWord) Low() uint8 { return uint8(s) }

// String renders the word as two binary bytes, "hhhhhhhh.llllllll"
func (s StateWord) String() string {
	return fmt.Sprintf("%08b.%08b", s.High(), s.Low())
}
