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

import "testing"

// buildSISOSample builds a toy SI/SO stateful table:
// U+0041/U+0042 roundtrip as single EBCDIC-ish bytes, U+4E00
// roundtrips as a two-byte DBCS pair.
func buildSISOSample() *Table {
	b := newTestBuilder(OutputSISO2)
	b.addDBCSFromU(0x0041, 0x0041, true)
	b.addDBCSFromU(0x0042, 0x0042, true)
	b.addDBCSFromU(0x4E00, 0xA1A2, true)
	return b.build()
}

func TestSISOFromUnicodeShiftSequence(t *testing.T) {
	table := buildSISOSample()
	c := Open(table)

	dst := make([]byte, 16)
	_, produced, err := c.FromUnicodeWithOffsets([]uint16{0x0041, 0x4E00, 0x0042}, dst, nil, true)
	if err != nil {
		t.Fatalf("FromUnicodeWithOffsets: %v", err)
	}
	want := []byte{0x41, 0x0E, 0xA1, 0xA2, 0x0F, 0x42}
	if produced != len(want) {
		t.Fatalf("produced %d bytes % x, want % x", produced, dst[:produced], want)
	}
	for i, w := range want {
		if dst[i] != w {
			t.Fatalf("got % x, want % x", dst[:produced], want)
		}
	}
}

func TestSISOFlushEndsInDBCSMode(t *testing.T) {
	table := buildSISOSample()
	c := Open(table)

	dst := make([]byte, 16)
	_, produced, err := c.FromUnicodeWithOffsets([]uint16{0x4E00}, dst, nil, true)
	if err != nil {
		t.Fatalf("FromUnicodeWithOffsets: %v", err)
	}
	// shift-out, the DBCS pair, then a final shift-in emitted at flush
	// because the stream would otherwise end in DBCS mode.
	want := []byte{0x0E, 0xA1, 0xA2, 0x0F}
	if produced != len(want) {
		t.Fatalf("produced %d bytes % x, want % x", produced, dst[:produced], want)
	}
	for i, w := range want {
		if dst[i] != w {
			t.Fatalf("got % x, want % x", dst[:produced], want)
		}
	}
}
