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

// linear packs a 4-byte GB 18030 sequence into the scalar encoding used by
// gb18030Ranges.
func linear(b0, b1, b2, b3 byte) uint32 {
	return ((uint32(b0)*10+uint32(b1))*126+uint32(b2))*10 + uint32(b3)
}

// linearBase is the linear value of the lowest structurally valid GB 18030
// four-byte sequence ({0x81,0x30,0x81,0x30}); byte decomposition on the
// from-Unicode side runs against linear values relative to this base.
var linearBase = linear(0x81, 0x30, 0x81, 0x30)

type gb18030Range struct {
	uStart, uEnd   rune
	gbStart, gbEnd uint32
}

var gb18030Ranges = [13]gb18030Range{
	{0x10000, 0x10FFFF, linear(0x90, 0x30, 0x81, 0x30), linear(0xE3, 0x32, 0x9A, 0x35)},
	{0x9FA6, 0xD7FF, linear(0x82, 0x35, 0x8F, 0x33), linear(0x83, 0x36, 0xC7, 0x38)},
	{0x0452, 0x200F, linear(0x81, 0x30, 0xD3, 0x30), linear(0x81, 0x36, 0xA5, 0x31)},
	{0xE865, 0xF92B, linear(0x83, 0x36, 0xD0, 0x30), linear(0x84, 0x30, 0x85, 0x34)},
	{0x2643, 0x2E80, linear(0x81, 0x37, 0xA8, 0x39), linear(0x81, 0x38, 0xFD, 0x38)},
	{0xFA2A, 0xFE2F, linear(0x84, 0x30, 0x9C, 0x38), linear(0x84, 0x31, 0x85, 0x37)},
	{0x3CE1, 0x4055, linear(0x82, 0x31, 0xD4, 0x38), linear(0x82, 0x32, 0xAF, 0x32)},
	{0x361B, 0x3917, linear(0x82, 0x30, 0xA6, 0x33), linear(0x82, 0x30, 0xF2, 0x37)},
	{0x49B8, 0x4C76, linear(0x82, 0x34, 0xA1, 0x31), linear(0x82, 0x34, 0xE7, 0x33)},
	{0x4160, 0x4336, linear(0x82, 0x32, 0xC9, 0x37), linear(0x82, 0x32, 0xF8, 0x37)},
	{0x478E, 0x4946, linear(0x82, 0x33, 0xE8, 0x38), linear(0x82, 0x34, 0x96, 0x38)},
	{0x44D7, 0x464B, linear(0x82, 0x33, 0xA3, 0x39), linear(0x82, 0x33, 0xC9, 0x31)},
	{0xFFE6, 0xFFFF, linear(0x84, 0x31, 0xA2, 0x34), linear(0x84, 0x31, 0xA4, 0x39)},
}

// gb18030Encode maps a code point through the 13 algorithmic ranges,
// producing the 4-byte GB 18030 sequence. Both sides of each range are
// contiguous, so the conversion is a single offset add.
func gb18030Encode(c rune) ([]byte, bool) {
	for _, r := range gb18030Ranges {
		if c < r.uStart || c > r.uEnd {
			continue
		}
		relative := (r.gbStart - linearBase) + uint32(c-r.uStart)
		return gb18030Bytes(relative), true
	}
	return nil, false
}

// gb18030Decode is the inverse of gb18030Encode, given four raw bytes
// already known to fall in the GB 18030 four-byte structural shape
// ([0x81-0xFE] [0x30-0x39] [0x81-0xFE] [0x30-0x39]).
func gb18030Decode(b [4]byte) (rune, bool) {
	if !isGB18030FourByte(b) {
		return 0, false
	}
	gb := linear(b[0], b[1], b[2], b[3])
	for _, r := range gb18030Ranges {
		if gb < r.gbStart || gb > r.gbEnd {
			continue
		}
		return r.uStart + rune(gb-r.gbStart), true
	}
	return 0, false
}

// isGB18030FourByte reports whether b has the structural shape of a GB
// 18030 four-byte sequence, independent of whether it falls in a mapped
// range.
func isGB18030FourByte(b [4]byte) bool {
	return b[0] >= 0x81 && b[0] <= 0xFE &&
		b[1] >= 0x30 && b[1] <= 0x39 &&
		b[2] >= 0x81 && b[2] <= 0xFE &&
		b[3] >= 0x30 && b[3] <= 0x39
}

// gb18030Bytes unpacks a linear value, relative to linearBase, back into
// its four raw bytes.
func gb18030Bytes(relative uint32) []byte {
	b3 := byte(0x30 + relative%10)
	relative /= 10
	b2 := byte(0x81 + relative%126)
	relative /= 126
	b1 := byte(0x30 + relative%10)
	relative /= 10
	b0 := byte(0x81 + relative)
	return []byte{b0, b1, b2, b3}
}
