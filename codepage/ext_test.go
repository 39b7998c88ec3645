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

package codepage_test

import (
	"testing"

	"github.com/go-textconv/textconv/codepage"
	"github.com/go-textconv/textconv/codepage/extfake"
)

// TestExtensionToUnicodePartialThenConsumed checks that a to-Unicode byte
// sequence unassigned in the core
// table resolves through the extension hook across two buffers, the first
// of which only supplies a prefix.
func TestExtensionToUnicodePartialThenConsumed(t *testing.T) {
	table := codepage.BuildCP37()
	table.SetStateTableEntry(0x99, codepage.PackFinal(0, codepage.ActionUnassigned, 0))

	ext := extfake.New([]extfake.Entry{
		{Bytes: []byte{0x99, 0x9A}, Runes: []rune{0x1F600}},
	})
	c := codepage.Open(table, codepage.WithExtension(ext))

	var units [2]uint16
	consumed1, produced1, err1 := c.ToUnicodeWithOffsets([]byte{0x99}, units[:], nil, false)
	if err1 != nil {
		t.Fatalf("first call: %v", err1)
	}
	if consumed1 != 1 || produced1 != 0 {
		t.Fatalf("first call: consumed=%d produced=%d, want 1 0", consumed1, produced1)
	}

	consumed2, produced2, err2 := c.ToUnicodeWithOffsets([]byte{0x9A}, units[:], nil, true)
	if err2 != nil {
		t.Fatalf("second call: %v", err2)
	}
	if consumed2 != 1 || produced2 != 2 {
		t.Fatalf("second call: consumed=%d produced=%d, want 1 2", consumed2, produced2)
	}
	if units[0] < 0xD800 || units[0] > 0xDBFF || units[1] < 0xDC00 || units[1] > 0xDFFF {
		t.Fatalf("units %v are not a surrogate pair", units[:produced2])
	}
	got := (rune(units[0]-0xD800)<<10 | rune(units[1]-0xDC00)) + 0x10000
	if got != 0x1F600 {
		t.Fatalf("decoded %U, want U+1F600", got)
	}
}

// TestExtensionFromUnicodePartialThenConsumed checks that an unmapped code
// point resolves through
// MatchFromUnicode, continuing across a second code point via
// continueExtFromUnicode once the first call reports a partial match.
func TestExtensionFromUnicodePartialThenConsumed(t *testing.T) {
	table := codepage.BuildCP37()
	ext := extfake.New([]extfake.Entry{
		{Bytes: []byte{0xF0}, Runes: []rune{0x0090, 0x0091}},
	})
	c := codepage.Open(table, codepage.WithExtension(ext))

	var dst [2]byte
	consumed1, produced1, err1 := c.FromUnicodeWithOffsets([]uint16{0x0090}, dst[:], nil, false)
	if err1 != nil {
		t.Fatalf("first call: %v", err1)
	}
	if consumed1 != 1 || produced1 != 0 {
		t.Fatalf("first call: consumed=%d produced=%d, want 1 0", consumed1, produced1)
	}

	consumed2, produced2, err2 := c.FromUnicodeWithOffsets([]uint16{0x0091}, dst[:], nil, true)
	if err2 != nil {
		t.Fatalf("second call: %v", err2)
	}
	if consumed2 != 1 || produced2 != 1 || dst[0] != 0xF0 {
		t.Fatalf("second call: consumed=%d produced=%d dst=% x, want 1 1 {f0}", consumed2, produced2, dst[:produced2])
	}
}

// TestExtensionNoMatchFallsThroughToInvalidChar checks that a to-Unicode
// byte sequence the extension table doesn't recognize at all still reports
// InvalidChar, rather than hanging in a partial state forever.
func TestExtensionNoMatchFallsThroughToInvalidChar(t *testing.T) {
	table := codepage.BuildCP37()
	table.SetStateTableEntry(0x99, codepage.PackFinal(0, codepage.ActionUnassigned, 0))

	ext := extfake.New([]extfake.Entry{
		{Bytes: []byte{0x99, 0x9A}, Runes: []rune{0x1F600}},
	})
	c := codepage.Open(table, codepage.WithExtension(ext))

	var units [2]uint16
	_, _, err := c.ToUnicodeWithOffsets([]byte{0x99, 0x50}, units[:], nil, true)
	if err == nil {
		t.Fatal("expected an error for a byte sequence the extension table doesn't match")
	}
	ce, ok := err.(*codepage.ConvError)
	if !ok || ce.Status != codepage.StatusInvalidChar {
		t.Fatalf("got %#v, want StatusInvalidChar", err)
	}
}

// TestExtensionToUnicodeMatchWithinOneBuffer checks that a multi-byte
// extension match completes inside a single call when all its bytes are in
// the same source buffer, rather than suspending at the first byte.
func TestExtensionToUnicodeMatchWithinOneBuffer(t *testing.T) {
	table := codepage.BuildCP37()
	table.SetStateTableEntry(0x99, codepage.PackFinal(0, codepage.ActionUnassigned, 0))

	ext := extfake.New([]extfake.Entry{
		{Bytes: []byte{0x99, 0x9A}, Runes: []rune{0x1F600}},
	})
	c := codepage.Open(table, codepage.WithExtension(ext))

	var units [2]uint16
	consumed, produced, err := c.ToUnicodeWithOffsets([]byte{0x99, 0x9A}, units[:], nil, true)
	if err != nil {
		t.Fatalf("ToUnicodeWithOffsets: %v", err)
	}
	if consumed != 2 || produced != 2 {
		t.Fatalf("consumed=%d produced=%d, want 2 2", consumed, produced)
	}
	got := (rune(units[0]-0xD800)<<10 | rune(units[1]-0xDC00)) + 0x10000
	if got != 0x1F600 {
		t.Fatalf("decoded %U, want U+1F600", got)
	}
}
