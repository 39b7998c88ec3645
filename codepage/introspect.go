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

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// UnicodeSetFilter narrows GetUnicodeSet's enumeration to well-known
// lead-byte shapes, for callers building a converter-selection UI or a
// charset-detection corpus.
type UnicodeSetFilter int

const (
	FilterNone UnicodeSetFilter = iota
	FilterDBCSOnly
	Filter2022CN   // lead byte 0x81 or 0x82 (plane 1 / plane 2)
	FilterShiftJIS // 0x8140..0xEFFC
	FilterGR94DBCS // lead+trail in 0xA1..0xFE
	FilterHZ       // lead byte 0xA1..0xFD
)

// UnicodeSetWhich selects whether GetUnicodeSet includes only roundtrip
// mappings or roundtrip-and-fallback.
type UnicodeSetWhich int

const (
	RoundtripOnly UnicodeSetWhich = iota
	RoundtripAndFallback
)

// GetUnicodeSet enumerates the from-Unicode trie and returns every code
// point whose mapping is roundtrip (always included) or fallback (when
// which is RoundtripAndFallback), subject to filter. A GB 18030 converter
// overrides the enumeration entirely with its full algorithmic visible set:
// everything except the surrogate range.
func (c *Converter) GetUnicodeSet(which UnicodeSetWhich, filter UnicodeSetFilter) []rune {
	if c.Options.GB18030 {
		out := make([]rune, 0, 0xD800+0x10FFFF-0xE000+1)
		for r := rune(0); r <= 0xD7FF; r++ {
			out = append(out, r)
		}
		for r := rune(0xE000); r <= 0x10FFFF; r++ {
			out = append(out, r)
		}
		return out
	}

	var out []rune
	t := c.Table
	limit := rune(0x10FFFF)
	if len(t.stage1) <= 64 {
		limit = 0xFFFF
	}
	for cp := rune(0); cp <= limit; cp++ {
		entry, ok := t.stage2Entry(cp)
		if !ok {
			continue
		}
		slot := uint32(cp) & 0xF
		if !c.unicodeSetHasResult(which, entry, cp, slot) {
			continue
		}
		if !matchesFilter(filter, entry, t, slot) {
			continue
		}
		out = append(out, cp)
	}
	return out
}

// unicodeSetHasResult reports whether (entry, cp) maps under the requested
// inclusion rule, mirroring the assignment tests in fromuni.go's assemble*
// helpers without materializing the bytes.
func (c *Converter) unicodeSetHasResult(which UnicodeSetWhich, entry uint32, cp rune, slot uint32) bool {
	switch c.Table.OutputType {
	case OutputSBCS1:
		word, ok := c.Table.stage3SBCSWord(entry, cp)
		if !ok {
			return false
		}
		if word >= 0xF00 {
			return true
		}
		return which == RoundtripAndFallback && word >= 0x800
	default:
		if roundtripBit(uint16(entry>>16), slot) {
			return true
		}
		if which != RoundtripAndFallback {
			return false
		}
		// fallback mappings always have a non-zero stage-3 result
		switch c.Table.OutputType {
		case OutputMBCS3, OutputEUC3:
			b3, ok := c.Table.stage3Bytes3(entry, slot)
			return ok && (b3[0]|b3[1]|b3[2]) != 0
		case OutputMBCS4, OutputEUC4:
			w, ok := c.Table.stage3Bytes4(entry, slot)
			return ok && w != 0
		default:
			w, ok := c.Table.stage3MBCSWord16(entry, slot)
			return ok && w != 0
		}
	}
}

// matchesFilter applies the lead-byte shape filters, consulting the table's
// stage-3 result when the filter demands one.
func matchesFilter(filter UnicodeSetFilter, entry uint32, t *Table, slot uint32) bool {
	if filter == FilterNone {
		return true
	}
	word, ok := t.stage3MBCSWord16(entry, slot)
	if !ok {
		return false
	}
	lead := byte(word >> 8)
	if word <= 0xFF {
		lead = byte(word)
	}
	switch filter {
	case FilterDBCSOnly:
		return t.OutputType == OutputDBCSOnly || t.OutputType == OutputDBCS2
	case Filter2022CN:
		return lead == 0x81 || lead == 0x82
	case FilterShiftJIS:
		return word >= 0x8140 && word <= 0xEFFC
	case FilterGR94DBCS:
		trail := byte(word)
		return lead >= 0xA1 && lead <= 0xFE && trail >= 0xA1 && trail <= 0xFE
	case FilterHZ:
		return lead >= 0xA1 && lead <= 0xFD
	}
	return true
}

// GetStarters fills out[256] with true at every byte that can begin a
// character from the initial state (or the DBCS-only state, when the table
// has one).
func (c *Converter) GetStarters(out *[256]bool) {
	state := uint8(0)
	if c.Table.hasDBCSOnlyState {
		state = c.Table.dbcsOnlyState
	}
	row := c.activeToURow(state)
	for b := 0; b < 256; b++ {
		e := unpackEntry(row[b])
		out[b] = !e.final || e.action != actionIllegal
	}
}

// LeadBytes is GetStarters reshaped as a sorted slice, for callers that
// want to range over the starting bytes instead of scanning a [256]bool
// array.
func (c *Converter) LeadBytes() []byte {
	var set [256]bool
	c.GetStarters(&set)
	out := make([]byte, 0, 256)
	for b := 0; b < 256; b++ {
		if set[b] {
			out = append(out, byte(b))
		}
	}
	slices.Sort(out)
	return out
}

// ReachableStates walks the to-Unicode state table from state 0, following
// every transition, and returns the set of states that can actually be
// entered. A state absent from this set is dead table data that a
// table-compiler bug could have produced.
func (t *Table) ReachableStates() []uint8 {
	seen := make(map[uint8]bool, t.CountStates)
	pending := []uint8{0}
	seen[0] = true
	for len(pending) > 0 {
		s := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		base := int(s) * 256
		if base+256 > len(t.stateTable) {
			continue
		}
		row := t.stateTable[base : base+256]
		for _, raw := range row {
			e := unpackEntry(raw)
			if e.final {
				continue
			}
			if !seen[e.nextState] {
				seen[e.nextState] = true
				pending = append(pending, e.nextState)
			}
		}
	}
	out := maps.Keys(seen)
	slices.Sort(out)
	return out
}
