// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package codepage

import "golang.org/x/exp/constraints"

// testBit reports whether bit k is set in a packed bitset stored as a slice
// of unsigned words, least-significant word first.
func testBit[T constraints.Unsigned, K constraints.Integer](in []T, k K) bool {
	bitsPerT := K(wordBits[T]())
	idx := k / bitsPerT
	if int(idx) >= len(in) {
		return false
	}
	return in[idx]&(T(1)<<(k%bitsPerT)) != 0
}

// setBit sets bit k in a packed bitset.
func setBit[T constraints.Unsigned, K constraints.Integer](in []T, k K) {
	bitsPerT := K(wordBits[T]())
	in[k/bitsPerT] |= T(1) << (k % bitsPerT)
}

func wordBits[T constraints.Unsigned]() int {
	var z T
	switch any(z).(type) {
	case uint8:
		return 8
	case uint16:
		return 16
	case uint32:
		return 32
	default:
		return 64
	}
}

// roundtripBit tests bit `slot` (0..15) of a 16-bit stage-2 roundtrip
// bitmap: a code point's from-Unicode result counts as assigned only when
// its slot's bit is set.
func roundtripBit(bitmap uint16, slot uint32) bool {
	return bitmap&(uint16(1)<<(slot&0xF)) != 0
}

// asciiRoundtripsBit tests whether ASCII byte c (0..0x7F) roundtrips
// identically through a table's asciiRoundtrips set, which keeps one bit
// per group of four consecutive byte values.
func asciiRoundtripsBit(set uint32, c rune) bool {
	return testBit([]uint32{set}, uint(c>>2))
}
