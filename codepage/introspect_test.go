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

func TestGetStartersSingleLeadByte(t *testing.T) {
	table := buildShiftJISHiragana()
	c := Open(table)

	var starters [256]bool
	c.GetStarters(&starters)
	for b := 0; b < 256; b++ {
		want := b == 0x82
		if starters[b] != want {
			t.Fatalf("starters[%#x] = %v, want %v", b, starters[b], want)
		}
	}
}

func TestLeadBytesMatchesGetStarters(t *testing.T) {
	table := buildShiftJISHiragana()
	c := Open(table)

	var starters [256]bool
	c.GetStarters(&starters)
	var want []byte
	for b := 0; b < 256; b++ {
		if starters[b] {
			want = append(want, byte(b))
		}
	}

	got := c.LeadBytes()
	if len(got) != len(want) {
		t.Fatalf("LeadBytes() = % x, want % x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LeadBytes() = % x, want % x", got, want)
		}
	}
}

// TestReachableStatesWalksTransitions checks that a two-state DBCS table
// reports both states reachable from the initial state, mirroring the BFS
// a converter-table compiler's consistency check would run.
func TestReachableStatesWalksTransitions(t *testing.T) {
	table := buildShiftJISHiragana()
	states := table.ReachableStates()
	if len(states) != 2 || states[0] != 0 || states[1] != 1 {
		t.Fatalf("ReachableStates() = %v, want [0 1]", states)
	}
}

// TestReachableStatesSingleState checks the degenerate SBCS case: only the
// initial state exists, and every byte is either final or illegal, so no
// other state is reachable.
func TestReachableStatesSingleState(t *testing.T) {
	table := buildCP37()
	states := table.ReachableStates()
	if len(states) != 1 || states[0] != 0 {
		t.Fatalf("ReachableStates() = %v, want [0]", states)
	}
}

func TestGetUnicodeSetWhichSBCS(t *testing.T) {
	b := newTestBuilder(OutputSBCS1)
	b.addSBCSToU(0xC8, 'H', false)
	b.addSBCSFromU('H', 0xC8, 0xF)
	b.addSBCSFromU(0x2122, 0x99, 0x8) // fallback-only mapping
	table := b.build()

	c := Open(table)
	rt := c.GetUnicodeSet(RoundtripOnly, FilterNone)
	if len(rt) != 1 || rt[0] != 'H' {
		t.Fatalf("RoundtripOnly = %v, want ['H']", rt)
	}
	both := c.GetUnicodeSet(RoundtripAndFallback, FilterNone)
	if len(both) != 2 || both[0] != 'H' || both[1] != 0x2122 {
		t.Fatalf("RoundtripAndFallback = %v, want ['H' U+2122]", both)
	}
}

func TestGetUnicodeSetWhichDBCS(t *testing.T) {
	b := newTestBuilder(OutputDBCS2)
	b.addDBCSToU(0x82, 0xA0, 0x3042)
	b.addDBCSFromU(0x3042, 0x82A0, true)
	b.addDBCSFromU(0x4E8C, 0x82A1, false) // fallback-only mapping
	table := b.build()

	c := Open(table)
	rt := c.GetUnicodeSet(RoundtripOnly, FilterNone)
	if len(rt) != 1 || rt[0] != 0x3042 {
		t.Fatalf("RoundtripOnly = %v, want [U+3042]", rt)
	}
	both := c.GetUnicodeSet(RoundtripAndFallback, FilterNone)
	if len(both) != 2 || both[0] != 0x3042 || both[1] != 0x4E8C {
		t.Fatalf("RoundtripAndFallback = %v, want [U+3042 U+4E8C]", both)
	}
}

func TestGetUnicodeSetGB18030Override(t *testing.T) {
	c := Open(buildCP37(), WithGB18030())
	set := c.GetUnicodeSet(RoundtripOnly, FilterNone)
	want := 0xD800 + (0x10FFFF - 0xE000 + 1)
	if len(set) != want {
		t.Fatalf("len = %d, want %d (everything but surrogates)", len(set), want)
	}
	if set[0] != 0 || set[0xD800] != 0xE000 {
		t.Fatalf("set boundaries wrong: first=%U, post-surrogate=%U", set[0], set[0xD800])
	}
}
