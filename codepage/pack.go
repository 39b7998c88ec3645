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

// Packed 32-bit state-table entry layout. Bit 31 selects transition vs.
// final; transitions carry a 7-bit next state and a signed 24-bit offset
// delta, finals a 7-bit next state, a 4-bit action code, and a 20-bit
// payload. The packing is a storage detail only; everywhere else in this
// package works with the unpacked sum type below.
const (
	entryFinalBit    = uint32(1) << 31
	entryStateMask   = uint32(0x7F) << 24
	entryStateShl    = 24
	entryActionMask  = uint32(0xF) << 20
	entryActionShl   = 20
	entryPayloadMask = uint32(0xFFFFF)
	entryDeltaMask   = uint32(0xFFFFFF)
)

// action codes, exhaustive.
const (
	actionRoundtripBMP = iota
	actionRoundtripSupplementary
	actionFallbackBMP
	actionFallbackSupplementary
	actionIndexed16
	actionIndexedPair
	actionUnassigned
	actionIllegal
	actionStateChangeOnly
	// 9..15 reserved, treated as actionStateChangeOnly.
)

const (
	sentinelUnassigned16 = 0xFFFE
	sentinelIllegal16    = 0xFFFF
)

// stateEntry is the unpacked sum type for a 32-bit table entry: either a
// transition or a final (emitting) entry.
type stateEntry struct {
	final       bool
	nextState   uint8
	offsetDelta int32  // valid when !final
	action      uint8  // valid when final
	payload     uint32 // valid when final, 20 bits
}

func unpackEntry(raw uint32) stateEntry {
	next := uint8((raw & entryStateMask) >> entryStateShl)
	if raw&entryFinalBit == 0 {
		// sign-extend the 24-bit delta
		delta := int32(raw & entryDeltaMask)
		if delta&0x00800000 != 0 {
			delta |= ^int32(entryDeltaMask)
		}
		return stateEntry{final: false, nextState: next, offsetDelta: delta}
	}
	return stateEntry{
		final:     true,
		nextState: next,
		action:    uint8((raw & entryActionMask) >> entryActionShl),
		payload:   raw & entryPayloadMask,
	}
}

func packTransition(nextState uint8, delta int32) uint32 {
	return (uint32(nextState) << entryStateShl) | (uint32(delta) & entryDeltaMask)
}

func packFinal(nextState, action uint8, payload uint32) uint32 {
	return entryFinalBit | (uint32(nextState) << entryStateShl) | (uint32(action) << entryActionShl) | (payload & entryPayloadMask)
}

// emissionKind classifies what a final state-table entry produces, so the
// outer loop consumes one flat enum instead of a nested action chain.
type emissionKind int

const (
	emitOne emissionKind = iota
	emitTwo
	emitIndexedLookup // fetch one code unit from unicodeCodeUnits
	emitPairLookup    // fetch a code-unit pair and dispatch on the first
	emitUnassigned
	emitIllegal
	emitStateChangeOnly
)

type emission struct {
	kind      emissionKind
	u1, u2    uint16
	fallback  bool
	lookupIdx int32 // absolute index into unicodeCodeUnits, for emitIndexedLookup/emitPairLookup
}

// decodeFinal turns a final entry's action/payload into an emission,
// folding the accumulated transition offset into the index where the
// action calls for a lookup.
func decodeFinal(e stateEntry, offsetAccum int32) emission {
	switch e.action {
	case actionRoundtripBMP:
		return emission{kind: emitOne, u1: uint16(e.payload), fallback: false}
	case actionRoundtripSupplementary:
		u1, u2 := surrogatePair(0x10000 + rune(e.payload))
		return emission{kind: emitTwo, u1: u1, u2: u2, fallback: false}
	case actionFallbackBMP:
		return emission{kind: emitOne, u1: uint16(e.payload), fallback: true}
	case actionFallbackSupplementary:
		u1, u2 := surrogatePair(0x10000 + rune(e.payload))
		return emission{kind: emitTwo, u1: u1, u2: u2, fallback: true}
	case actionIndexed16:
		delta := int32(e.payload & 0x1FF)
		return emission{kind: emitIndexedLookup, lookupIdx: offsetAccum + delta}
	case actionIndexedPair:
		delta := int32(e.payload & 0x1FF)
		return emission{kind: emitPairLookup, lookupIdx: offsetAccum + delta}
	case actionUnassigned:
		return emission{kind: emitUnassigned}
	case actionIllegal:
		return emission{kind: emitIllegal}
	default: // actionStateChangeOnly and reserved 9..15
		return emission{kind: emitStateChangeOnly}
	}
}

func surrogatePair(c rune) (hi, lo uint16) {
	c -= 0x10000
	return uint16(0xD800 + (c >> 10)), uint16(0xDC00 + (c & 0x3FF))
}
