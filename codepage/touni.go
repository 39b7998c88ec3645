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

import "sort"

// Sentinel results for GetNextUChar.
const (
	UseToU             rune = -1
	IndexOutOfBounds   rune = -2
	TruncatedCharFound rune = -3
)

// ToUnicodeWithOffsets drives the byte-indexed state machine, consuming
// bytes from src and producing UTF-16 code units (including surrogate pairs
// for supplementary code points) into dst. When offsets is non-nil,
// offsets[i] receives the source index of the final input byte that
// produced dst[i]; a code unit completed from bytes carried over a previous
// call reports -1.
func (c *Converter) ToUnicodeWithOffsets(src []byte, dst []uint16, offsets []int32, flush bool) (consumed, produced int, err error) {
	di := 0
	si := 0

	// Drain code units parked by a previous buffer-overflow suspension
	// before doing any new work.
	for c.uCharErrLen > 0 {
		if di >= len(dst) {
			return 0, di, &ConvError{Status: StatusBufferOverflow}
		}
		dst[di] = c.uCharErr[0]
		if offsets != nil && di < len(offsets) {
			offsets[di] = -1
		}
		di++
		copy(c.uCharErr[:], c.uCharErr[1:c.uCharErrLen])
		c.uCharErrLen--
	}

	// Continue a previously partial extension match before returning to
	// the byte-level state machine.
	if c.extPending {
		var done bool
		si, di, done, err = c.resumeExtToU(src, si, dst, di, offsets, flush)
		if !done || err != nil {
			return si, di, err
		}
	}

	state := c.toMode
	offsetAccum := c.toStatus
	resuming := c.toULen > 0

	for si < len(src) {
		b := src[si]
		c.toUBytes[c.toULen] = b
		c.toULen++
		si++

		row := c.activeToURow(rowState(c.Table, state))
		e := unpackEntry(row[b])
		if !e.final {
			state = e.nextState
			offsetAccum += e.offsetDelta
			continue
		}

		em := decodeFinal(e, offsetAccum)
		srcIdx := int32(si - 1)
		if resuming {
			srcIdx = -1
		}

		var st Status
		di, st = c.emitToU(em, dst, di, offsets, srcIdx, flush && si == len(src))

		state = e.nextState
		offsetAccum = 0
		resuming = false

		if st == StatusBufferOverflow && c.extPending {
			// the extension needs more bytes; keep feeding it from this
			// buffer before suspending.
			c.toMode, c.toStatus = state, offsetAccum
			var done bool
			si, di, done, err = c.resumeExtToU(src, si, dst, di, offsets, flush)
			if !done || err != nil {
				return si, di, err
			}
			continue
		}

		captured := append([]byte(nil), c.toUBytes[:c.toULen]...)
		c.toULen = 0

		if st == StatusBufferOverflow {
			c.toMode, c.toStatus = state, offsetAccum
			return si, di, &ConvError{Status: st}
		}
		if st == StatusInvalidChar || st == StatusIllegalChar {
			c.toMode, c.toStatus = 0, 0
			return si, di, &ConvError{Status: st, Bytes: captured, Offset: si - len(captured)}
		}
	}

	c.toMode, c.toStatus = state, offsetAccum
	if flush && c.toULen > 0 {
		captured := append([]byte(nil), c.toUBytes[:c.toULen]...)
		c.toULen = 0
		c.toMode, c.toStatus = 0, 0
		return si, di, &ConvError{Status: StatusTruncated, Bytes: captured}
	}
	return si, di, nil
}

// resumeExtToU feeds input bytes one at a time to a pending extension match
// until it resolves or input runs out. done=false means the match is still
// partial and the caller must suspend until more input arrives.
func (c *Converter) resumeExtToU(src []byte, si int, dst []uint16, di int, offsets []int32, flush bool) (int, int, bool, error) {
	for {
		atEnd := si >= len(src)
		var tmp [4]uint16
		n, res := c.Options.Extension.MatchToUnicode(c.toUBytes[:c.toULen], flush && atEnd, tmp[:])
		switch res {
		case ExtConsumed:
			c.extPending = false
			c.toULen = 0
			var st Status
			di, st = c.writeUnits(tmp[:n], dst, di, offsets, -1)
			if st == StatusBufferOverflow {
				return si, di, true, &ConvError{Status: st}
			}
			return si, di, true, nil
		case ExtNoMatch:
			c.extPending = false
			captured := append([]byte(nil), c.toUBytes[:c.toULen]...)
			c.toULen = 0
			return si, di, true, &ConvError{Status: StatusInvalidChar, Bytes: captured, Offset: si - len(captured)}
		}
		// still partial: take another byte, or suspend.
		if atEnd {
			if flush {
				c.extPending = false
				captured := append([]byte(nil), c.toUBytes[:c.toULen]...)
				c.toULen = 0
				return si, di, true, &ConvError{Status: StatusTruncated, Bytes: captured}
			}
			return si, di, false, nil
		}
		if c.toULen == len(c.toUBytes) {
			// scratch exhausted; no real extension mapping is this long.
			c.extPending = false
			captured := append([]byte(nil), c.toUBytes[:c.toULen]...)
			c.toULen = 0
			return si, di, true, &ConvError{Status: StatusInvalidChar, Bytes: captured, Offset: si - len(captured)}
		}
		c.toUBytes[c.toULen] = src[si]
		c.toULen++
		si++
	}
}

// rowState applies the DBCS-only substitution: if the table declares a
// dedicated DBCS-only state and we are at the true initial state, use it
// instead so SI/SO shift bytes become illegal in this converter's view.
func rowState(t *Table, state uint8) uint8 {
	if state == 0 && t.hasDBCSOnlyState {
		return t.dbcsOnlyState
	}
	return state
}

// emitToU turns one decoded emission into zero or more output code units.
// flush must already account for whether any input remains after the
// current character; it is forwarded to the extension hook.
func (c *Converter) emitToU(em emission, dst []uint16, di int, offsets []int32, srcIdx int32, flush bool) (int, Status) {
	switch em.kind {
	case emitStateChangeOnly:
		return di, StatusOK

	case emitOne:
		if em.fallback && !c.Options.UseFallback {
			return c.emitUnassigned(dst, di, offsets, srcIdx, flush)
		}
		return c.writeUnits([]uint16{em.u1}, dst, di, offsets, srcIdx)

	case emitTwo:
		if em.fallback && !c.Options.UseFallback {
			return c.emitUnassigned(dst, di, offsets, srcIdx, flush)
		}
		return c.writeUnits([]uint16{em.u1, em.u2}, dst, di, offsets, srcIdx)

	case emitIndexedLookup:
		if em.lookupIdx < 0 || int(em.lookupIdx) >= len(c.Table.unicodeCodeUnits) {
			return c.emitIllegal(dst, di)
		}
		val := c.Table.unicodeCodeUnits[em.lookupIdx]
		switch val {
		case sentinelUnassigned16:
			if fb, ok := c.lookupToUFallback(em.lookupIdx); ok && c.Options.UseFallback {
				return c.writeFallbackRune(fb, dst, di, offsets, srcIdx)
			}
			return c.emitUnassigned(dst, di, offsets, srcIdx, flush)
		case sentinelIllegal16:
			return c.emitIllegal(dst, di)
		default:
			return c.writeUnits([]uint16{val}, dst, di, offsets, srcIdx)
		}

	case emitPairLookup:
		if em.lookupIdx < 0 || int(em.lookupIdx)+1 >= len(c.Table.unicodeCodeUnits) {
			return c.emitIllegal(dst, di)
		}
		first := c.Table.unicodeCodeUnits[em.lookupIdx]
		second := c.Table.unicodeCodeUnits[em.lookupIdx+1]
		pair := dispatchPair(first, second)
		switch pair.kind {
		case emitUnassigned:
			return c.emitUnassigned(dst, di, offsets, srcIdx, flush)
		case emitIllegal:
			return c.emitIllegal(dst, di)
		case emitOne:
			if pair.fallback && !c.Options.UseFallback {
				return c.emitUnassigned(dst, di, offsets, srcIdx, flush)
			}
			return c.writeUnits([]uint16{pair.u1}, dst, di, offsets, srcIdx)
		default: // emitTwo
			if pair.fallback && !c.Options.UseFallback {
				return c.emitUnassigned(dst, di, offsets, srcIdx, flush)
			}
			return c.writeUnits([]uint16{pair.u1, pair.u2}, dst, di, offsets, srcIdx)
		}

	case emitUnassigned:
		return c.emitUnassigned(dst, di, offsets, srcIdx, flush)

	case emitIllegal:
		return c.emitIllegal(dst, di)
	}
	return di, StatusOK
}

func (c *Converter) emitIllegal(dst []uint16, di int) (int, Status) {
	return di, StatusIllegalChar
}

// emitUnassigned defers to the extension hook, then to the GB 18030
// algorithmic four-byte ranges, before surfacing InvalidChar.
func (c *Converter) emitUnassigned(dst []uint16, di int, offsets []int32, srcIdx int32, flush bool) (int, Status) {
	if c.Options.Extension != nil {
		var tmp [4]uint16
		produced, res := c.Options.Extension.MatchToUnicode(c.toUBytes[:c.toULen], flush, tmp[:])
		switch res {
		case ExtConsumed:
			return c.writeUnits(tmp[:produced], dst, di, offsets, srcIdx)
		case ExtPartial:
			// caller must supply more input; leave scratch intact so the
			// next attempt still sees this sequence.
			c.extPending = true
			return di, StatusBufferOverflow
		}
	}
	if c.Options.GB18030 && c.toULen == 4 {
		var raw [4]byte
		copy(raw[:], c.toUBytes[:4])
		if cp, ok := gb18030Decode(raw); ok {
			return c.writeFallbackRune(cp, dst, di, offsets, srcIdx)
		}
	}
	return di, StatusInvalidChar
}

func (c *Converter) writeFallbackRune(r rune, dst []uint16, di int, offsets []int32, srcIdx int32) (int, Status) {
	if r <= 0xFFFF {
		return c.writeUnits([]uint16{uint16(r)}, dst, di, offsets, srcIdx)
	}
	hi, lo := surrogatePair(r)
	return c.writeUnits([]uint16{hi, lo}, dst, di, offsets, srcIdx)
}

// writeUnits writes units to dst starting at di, parking whatever doesn't
// fit into the converter's error buffer and signalling BufferOverflow.
func (c *Converter) writeUnits(units []uint16, dst []uint16, di int, offsets []int32, srcIdx int32) (int, Status) {
	for i, u := range units {
		if di >= len(dst) {
			for _, rest := range units[i:] {
				c.uCharErr[c.uCharErrLen] = rest
				c.uCharErrLen++
			}
			return di, StatusBufferOverflow
		}
		dst[di] = u
		if offsets != nil && di < len(offsets) {
			offsets[di] = srcIdx
		}
		di++
	}
	return di, StatusOK
}

// lookupToUFallback binary-searches toUFallbacks by Offset.
func (c *Converter) lookupToUFallback(offset int32) (rune, bool) {
	fb := c.Table.toUFallbacks
	i := sort.Search(len(fb), func(i int) bool { return fb[i].Offset >= offset })
	if i < len(fb) && fb[i].Offset == offset {
		return fb[i].Rune, true
	}
	return 0, false
}

// dispatchPair classifies a code-unit pair fetched for an indexed-pair
// action: the first unit selects between a lone BMP unit, a roundtrip or
// fallback surrogate pair, an unassigned slot, and an illegal one.
func dispatchPair(first, second uint16) emission {
	switch {
	case first <= 0xD7FF:
		return emission{kind: emitOne, u1: first}
	case first <= 0xDBFF:
		return emission{kind: emitTwo, u1: first, u2: second}
	case first <= 0xDFFF:
		return emission{kind: emitTwo, u1: first - 0x400, u2: second, fallback: true}
	case first == 0xE000:
		return emission{kind: emitOne, u1: second}
	case first == 0xE001:
		return emission{kind: emitOne, u1: second, fallback: true}
	case first == sentinelUnassigned16:
		return emission{kind: emitUnassigned}
	default: // 0xFFFF and anything else structurally invalid
		return emission{kind: emitIllegal}
	}
}

func combineSurrogates(hi, lo uint16) (rune, bool) {
	if hi >= 0xD800 && hi <= 0xDBFF && lo >= 0xDC00 && lo <= 0xDFFF {
		return (rune(hi-0xD800)<<10 | rune(lo-0xDC00)) + 0x10000, true
	}
	return 0, false
}

// GetNextUChar decodes and returns a single code point per call, consuming
// exactly the bytes that form it. It returns UseToU when the buffered path
// must resolve the input instead (unassigned or extension-mapped sequences,
// fallbacks the options exclude, structural errors that need captured-byte
// context); in that case the converter state is rewound so the buffered
// call sees the same input. It returns IndexOutOfBounds on empty input with
// nothing carried over, and TruncatedCharFound when src ends mid-character.
func (c *Converter) GetNextUChar(src []byte) (r rune, consumed int, status Status) {
	if len(src) == 0 && c.toULen == 0 {
		return IndexOutOfBounds, 0, StatusIndexOutOfBounds
	}
	if c.uCharErrLen > 0 || c.extPending {
		// parked output or a mid-flight extension match belongs to the
		// buffered path.
		return UseToU, 0, StatusOK
	}
	savedMode, savedStatus, savedLen := c.toMode, c.toStatus, c.toULen

	state := c.toMode
	offsetAccum := c.toStatus
	si := 0
	for si < len(src) {
		b := src[si]
		if c.toULen < len(c.toUBytes) {
			c.toUBytes[c.toULen] = b
			c.toULen++
		}
		si++

		row := c.activeToURow(rowState(c.Table, state))
		e := unpackEntry(row[b])
		if !e.final {
			state = e.nextState
			offsetAccum += e.offsetDelta
			continue
		}

		em := decodeFinal(e, offsetAccum)
		state = e.nextState
		offsetAccum = 0

		switch em.kind {
		case emitStateChangeOnly:
			c.toULen = 0
			c.toMode, c.toStatus = state, 0
			continue
		case emitOne:
			if !em.fallback || c.Options.UseFallback {
				c.toULen = 0
				c.toMode, c.toStatus = state, 0
				return rune(em.u1), si, StatusOK
			}
		case emitTwo:
			if !em.fallback || c.Options.UseFallback {
				if r, ok := combineSurrogates(em.u1, em.u2); ok {
					c.toULen = 0
					c.toMode, c.toStatus = state, 0
					return r, si, StatusOK
				}
			}
		case emitIndexedLookup:
			if em.lookupIdx >= 0 && int(em.lookupIdx) < len(c.Table.unicodeCodeUnits) {
				val := c.Table.unicodeCodeUnits[em.lookupIdx]
				if val != sentinelUnassigned16 && val != sentinelIllegal16 {
					c.toULen = 0
					c.toMode, c.toStatus = state, 0
					return rune(val), si, StatusOK
				}
				if val == sentinelUnassigned16 && c.Options.UseFallback {
					if fb, ok := c.lookupToUFallback(em.lookupIdx); ok {
						c.toULen = 0
						c.toMode, c.toStatus = state, 0
						return fb, si, StatusOK
					}
				}
			}
		case emitPairLookup:
			if em.lookupIdx >= 0 && int(em.lookupIdx)+1 < len(c.Table.unicodeCodeUnits) {
				pair := dispatchPair(c.Table.unicodeCodeUnits[em.lookupIdx], c.Table.unicodeCodeUnits[em.lookupIdx+1])
				if !pair.fallback || c.Options.UseFallback {
					if pair.kind == emitOne {
						c.toULen = 0
						c.toMode, c.toStatus = state, 0
						return rune(pair.u1), si, StatusOK
					}
					if pair.kind == emitTwo {
						if r, ok := combineSurrogates(pair.u1, pair.u2); ok {
							c.toULen = 0
							c.toMode, c.toStatus = state, 0
							return r, si, StatusOK
						}
					}
				}
			}
		}

		// Unassigned, illegal, excluded fallbacks, and anything else that
		// needs the extension hook or captured-byte error context: rewind
		// and let the buffered path take it from the top.
		c.toMode, c.toStatus, c.toULen = savedMode, savedStatus, savedLen
		return UseToU, 0, StatusOK
	}

	// ran out of input mid-character
	c.toMode, c.toStatus, c.toULen = savedMode, savedStatus, savedLen
	return TruncatedCharFound, 0, StatusTruncated
}
