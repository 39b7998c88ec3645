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

// buildShiftJISHiragana builds a toy stand-in for Shift-JIS covering just
// a single pair: U+3042 (hiragana A) <->
// bytes {0x82, 0xA0}.
func buildShiftJISHiragana() *Table {
	b := newTestBuilder(OutputDBCS2)
	b.addDBCSToU(0x82, 0xA0, 0x3042)
	b.addDBCSFromU(0x3042, 0x82A0, true)
	t := b.build()
	t.MaxBytesPerChar = 2
	t.MinBytesPerChar = 2
	return t
}

func TestDBCSShiftJISRoundtrip(t *testing.T) {
	table := buildShiftJISHiragana()

	c := Open(table)
	var dst [2]byte
	_, produced, err := c.FromUnicodeWithOffsets([]uint16{0x3042}, dst[:], nil, true)
	if err != nil || produced != 2 || dst[0] != 0x82 || dst[1] != 0xA0 {
		t.Fatalf("fromUnicode: got % x err=%v, want {82 a0}", dst[:produced], err)
	}

	c2 := Open(table)
	var units [1]uint16
	_, produced2, err2 := c2.ToUnicodeWithOffsets([]byte{0x82, 0xA0}, units[:], nil, true)
	if err2 != nil || produced2 != 1 || units[0] != 0x3042 {
		t.Fatalf("toUnicode: got %v err=%v, want [3042]", units[:produced2], err2)
	}
}

// TestDBCSPartialResume splits a two-byte character across two buffers:
// feeding the lead byte with flush=false must produce nothing and
// leave the converter's to-Unicode scratch holding one byte; resuming with
// the trail byte then yields the character with the carried-over code unit
// reported at source index -1.
func TestDBCSPartialResume(t *testing.T) {
	table := buildShiftJISHiragana()
	c := Open(table)

	var units [1]uint16
	var offs [1]int32
	consumed, produced, err := c.ToUnicodeWithOffsets([]byte{0x82}, units[:], offs[:], false)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if consumed != 1 || produced != 0 {
		t.Fatalf("first call: consumed=%d produced=%d, want 1 0", consumed, produced)
	}
	if c.toULen != 1 {
		t.Fatalf("toULen = %d, want 1", c.toULen)
	}

	consumed2, produced2, err2 := c.ToUnicodeWithOffsets([]byte{0xA0}, units[:], offs[:], true)
	if err2 != nil {
		t.Fatalf("second call: %v", err2)
	}
	if consumed2 != 1 || produced2 != 1 || units[0] != 0x3042 {
		t.Fatalf("second call: consumed=%d produced=%d units=%v, want 1 1 [3042]", consumed2, produced2, units[:produced2])
	}
	if offs[0] != -1 {
		t.Fatalf("offsets[0] = %d, want -1 (carried from previous buffer)", offs[0])
	}
}

// TestStreamingEquivalence checks that splitting the source at any byte
// boundary and calling
// ToUnicodeWithOffsets repeatedly with flush=false, then once with
// flush=true, produces identical output to a single flush=true call.
func TestStreamingEquivalence(t *testing.T) {
	table := buildShiftJISHiragana()
	src := []byte{0x82, 0xA0, 0x82, 0xA0}

	whole := Open(table)
	wholeUnits := make([]uint16, 4)
	_, n, err := whole.ToUnicodeWithOffsets(src, wholeUnits, nil, true)
	if err != nil {
		t.Fatalf("whole-buffer call: %v", err)
	}
	want := append([]uint16(nil), wholeUnits[:n]...)

	for split := 0; split <= len(src); split++ {
		c := Open(table)
		var got []uint16
		buf := make([]uint16, 4)

		first := src[:split]
		_, n1, err := c.ToUnicodeWithOffsets(first, buf, nil, false)
		if err != nil {
			t.Fatalf("split=%d first call: %v", split, err)
		}
		got = append(got, buf[:n1]...)

		rest := src[split:]
		_, n2, err := c.ToUnicodeWithOffsets(rest, buf, nil, true)
		if err != nil {
			t.Fatalf("split=%d flush call: %v", split, err)
		}
		got = append(got, buf[:n2]...)

		if len(got) != len(want) {
			t.Fatalf("split=%d: got %v, want %v", split, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("split=%d: got %v, want %v", split, got, want)
			}
		}
	}
}

// TestDBCSFastIndexLookup wires the auxiliary per-64-code-point index onto
// the toy table and checks that the fast path produces the same bytes as
// the three-stage walk, and that a zero fast word falls back to the trie.
func TestDBCSFastIndexLookup(t *testing.T) {
	table := buildShiftJISHiragana()
	table.maxFastUChar = 0x3042
	table.mbcsIndex = make([]uint32, (0x3042>>6)+1)
	// block base: the code point's stage-3 word offset minus its low six
	// bits, so the fast lookup lands on the same word as the trie walk.
	entry, ok := table.stage2Entry(0x3042)
	if !ok {
		t.Fatal("stage2Entry(U+3042) missing")
	}
	wordIdx := (entry&0xFFFF)*16 + (0x3042 & 0xF)
	table.mbcsIndex[0x3042>>6] = wordIdx - (0x3042 & 0x3F)

	c := Open(table)
	var dst [2]byte
	_, produced, err := c.FromUnicodeWithOffsets([]uint16{0x3042}, dst[:], nil, true)
	if err != nil || produced != 2 || dst[0] != 0x82 || dst[1] != 0xA0 {
		t.Fatalf("fast path: got % x err=%v, want {82 a0}", dst[:produced], err)
	}

	// a neighboring unmapped code point has a zero fast word and must still
	// report unassigned through the full trie.
	c2 := Open(table)
	_, _, err2 := c2.FromUnicodeWithOffsets([]uint16{0x3041}, dst[:], nil, true)
	ce, ok := err2.(*ConvError)
	if !ok || ce.Status != StatusInvalidChar {
		t.Fatalf("zero fast word: got %v, want StatusInvalidChar", err2)
	}
}

// TestDBCSFromUTF8Bridge decodes UTF-8 directly into double-byte output:
// "あ" (U+3042, bytes {0xE3, 0x81, 0x82}) becomes the two-byte pair without
// an intermediate UTF-16 buffer.
func TestDBCSFromUTF8Bridge(t *testing.T) {
	table := buildShiftJISHiragana()
	c := Open(table)

	dst := make([]byte, 4)
	consumed, produced, err := c.DBCSFromUTF8([]byte{0xE3, 0x81, 0x82}, dst, true)
	if err != nil {
		t.Fatalf("DBCSFromUTF8: %v", err)
	}
	if consumed != 3 || produced != 2 || dst[0] != 0x82 || dst[1] != 0xA0 {
		t.Fatalf("consumed=%d produced=%d dst=% x, want 3 2 {82 a0}", consumed, produced, dst[:produced])
	}
}
