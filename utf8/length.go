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

// Package utf8 provides additional UTF-8 related functions.
package utf8

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// swarCapable reports whether the 8-bytes-at-a-time SWAR prescan should
// run: checked once at package init, with the byte-at-a-time loop as the
// fallback (cpu.X86 is the zero value on non-x86 architectures, so the
// fallback is what runs there).
var swarCapable = cpu.X86.HasSSE2

// AsciiPrefixLen returns the number of leading bytes of str with the high
// bit clear, checking 8 bytes at a time and stopping at the first chunk
// (or byte) that isn't plain ASCII.
func AsciiPrefixLen(str []byte) int {
	n := 0
	if swarCapable {
		for len(str) >= 8 {
			qword := binary.LittleEndian.Uint64(str)
			if qword&0x8080808080808080 != 0 {
				break
			}
			str = str[8:]
			n += 8
		}
	}
	for len(str) > 0 && str[0] < 0x80 {
		str = str[1:]
		n++
	}
	return n
}
