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

import "encoding/binary"

// testBuilder assembles a minimal, self-consistent Table by hand, following
// the exact indexing arithmetic stage2Entry/stage3*From use in production
// (table.go), so tests can exercise the real engines (touni.go/fromuni.go)
// without a compiled table-file blob. It is not a general-purpose table
// compiler: every helper here covers exactly the shapes these tests need.
type testBuilder struct {
	t       *Table
	blockOf map[uint16]uint32 // r>>10 -> stage2 base index
}

func newTestBuilder(outType OutputType) *testBuilder {
	return &testBuilder{
		t: &Table{
			OutputType: outType,
			stage1:     make([]uint16, 1088),
			// stage-2 block 0 stays all-zero so unmapped stage-1 keys
			// resolve to nothing instead of aliasing a real block.
			stage2: make([]uint32, 64),
			swap:   &swapCache{},
		},
		blockOf: make(map[uint16]uint32),
	}
}

// stage2Index resolves the stage2 slot for r, allocating a fresh 64-entry
// stage2 block (and recording it in stage1) the first time a given
// r>>10 group is seen.
func (b *testBuilder) stage2Index(r rune) uint32 {
	key := uint16(r >> 10)
	base, ok := b.blockOf[key]
	if !ok {
		base = uint32(len(b.t.stage2))
		b.t.stage2 = append(b.t.stage2, make([]uint32, 64)...)
		b.t.stage1[key] = uint16(base)
		b.blockOf[key] = base
	}
	return base + uint32((r>>4)&0x3F)
}

func (b *testBuilder) ensureStage3(idx uint32, bytesPerSlot int) {
	need := (int(idx) + 1) * 16 * bytesPerSlot
	if len(b.t.stage3) < need {
		grown := make([]byte, need)
		copy(grown, b.t.stage3)
		b.t.stage3 = grown
	}
}

// addSBCSFromU records an SBCS from-Unicode mapping r -> by as a 16-bit
// stage-3 word: low byte the codepage byte, high byte the kind nibble
// (0xF roundtrip, 0xC fallback-from-PUA, 0x8 other fallback).
func (b *testBuilder) addSBCSFromU(r rune, by byte, kind uint16) {
	idx := b.stage2Index(r)
	b.ensureStage3(idx, 2)
	slot := uint32(r) & 0xF
	word := (kind << 8) | uint16(by)
	off := (int(idx)*16 + int(slot)) * 2
	binary.LittleEndian.PutUint16(b.t.stage3[off:], word)
	b.t.stage2[idx] = idx
}

// addDBCSFromU records a DBCS/SISO/EUC from-Unicode mapping r -> a 16-bit
// stage-3 result word (<=0xFF emits one byte, else two bytes big-endian),
// setting the roundtrip bit for r's slot in the stage2 bitmap.
func (b *testBuilder) addDBCSFromU(r rune, word16 uint16, roundtrip bool) {
	idx := b.stage2Index(r)
	b.ensureStage3(idx, 2)
	slot := uint32(r) & 0xF
	off := (int(idx)*16 + int(slot)) * 2
	binary.LittleEndian.PutUint16(b.t.stage3[off:], word16)
	bitmap := b.t.stage2[idx] >> 16
	if roundtrip {
		bitmap |= 1 << slot
	}
	b.t.stage2[idx] = idx | (bitmap << 16)
}

// addSBCSToU sets the single-state to-Unicode entry for byte by, as a BMP
// roundtrip or fallback final.
func (b *testBuilder) addSBCSToU(by byte, r rune, fallback bool) {
	if len(b.t.stateTable) == 0 {
		b.t.stateTable = make([]uint32, 256)
		for i := range b.t.stateTable {
			b.t.stateTable[i] = packFinal(0, actionIllegal, 0)
		}
		b.t.CountStates = 1
	}
	action := uint8(actionRoundtripBMP)
	if fallback {
		action = actionFallbackBMP
	}
	b.t.stateTable[by] = packFinal(0, action, uint32(r))
}

// addDBCSToU wires a two-byte lead/trail to-Unicode path across two states,
// growing the state table as needed.
func (b *testBuilder) addDBCSToU(lead, trail byte, r rune) {
	if len(b.t.stateTable) == 0 {
		b.t.stateTable = make([]uint32, 256)
		for i := range b.t.stateTable[:256] {
			b.t.stateTable[i] = packFinal(0, actionIllegal, 0)
		}
		b.t.CountStates = 1
	}
	nextState := uint8(b.t.CountStates)
	b.t.stateTable[lead] = packTransition(nextState, 0)

	row := make([]uint32, 256)
	for i := range row {
		row[i] = packFinal(0, actionIllegal, 0)
	}
	row[trail] = packFinal(0, actionRoundtripBMP, uint32(r))
	b.t.stateTable = append(b.t.stateTable, row...)
	b.t.CountStates++
}

func (b *testBuilder) build() *Table {
	return b.t
}
