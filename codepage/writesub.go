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

// WriteSub emits a substitution for the code point that most recently
// failed to map, in place of a skip or a stop. The callback layer sitting
// above the converter decides when to call it instead of surfacing the
// failure to its own caller.
//
// cp is the code point that failed to map; it chooses SubChar1 (1 byte)
// over SubChar (multi-byte) exactly when cp <= 0xFF and SubChar1 is
// non-zero, matching the original
// mapping's own byte-width split. offsetIndex is the source index recorded
// against every byte WriteSub produces, when offsets is non-nil.
func (c *Converter) WriteSub(cp rune, dst []byte, di int, offsets []int32, offsetIndex int32) (int, Status) {
	raw := c.SubChar
	if cp <= 0xFF && c.SubChar1 != 0 {
		raw = []byte{c.SubChar1}
	}
	if len(raw) == 0 {
		raw = []byte{'?'}
	}

	out := raw
	if c.Table.Type() == TypeEBCDICStateful || c.Table.OutputType == OutputSISO2 {
		out = c.wrapSISO(raw)
	}

	di, st := c.writeBytes(out, dst, di, offsets, offsetIndex)
	return di, st
}
