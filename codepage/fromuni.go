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

const (
	shiftIn  byte = 0x0F // back to single-byte mode
	shiftOut byte = 0x0E // into double-byte mode

	singleShift2 byte = 0x8E // EUC SS2 prefix
	singleShift3 byte = 0x8F // EUC SS3 prefix
)

// FromUnicodeWithOffsets drives the three-stage trie lookup, consuming
// UTF-16 code units from src (surrogate pairs are reassembled
// automatically) and producing codepage bytes into dst. When offsets is
// non-nil, offsets[i] receives the index of the code unit that produced
// dst[i]; bytes drained from a previous call's overflow report -1.
func (c *Converter) FromUnicodeWithOffsets(src []uint16, dst []byte, offsets []int32, flush bool) (consumed, produced int, err error) {
	di := 0
	si := 0

	for c.charErrBufLen > 0 {
		if di >= len(dst) {
			return 0, di, &ConvError{Status: StatusBufferOverflow}
		}
		dst[di] = c.charErrBuf[0]
		if offsets != nil && di < len(offsets) {
			offsets[di] = -1
		}
		di++
		copy(c.charErrBuf[:], c.charErrBuf[1:c.charErrBufLen])
		c.charErrBufLen--
	}

	for si < len(src) {
		u := src[si]
		var cp rune
		srcIdx := int32(si)

		if c.fromUChar32 != 0 {
			// a high surrogate is pending; this unit must be its trail.
			if u >= 0xDC00 && u <= 0xDFFF {
				cp = (rune(c.fromUChar32-0xD800)<<10 | rune(u-0xDC00)) + 0x10000
				si++
				c.fromUChar32 = 0
			} else {
				orphan := c.fromUChar32
				c.fromUChar32 = 0
				return si, di, illegalRuneErr(orphan)
			}
		} else if u >= 0xD800 && u <= 0xDBFF {
			if si == len(src)-1 {
				c.fromUChar32 = rune(u)
				si++
				if !flush {
					return si, di, nil
				}
				c.fromUChar32 = 0
				return si, di, illegalRuneErr(rune(u))
			}
			lo := src[si+1]
			if lo >= 0xDC00 && lo <= 0xDFFF {
				cp = (rune(u-0xD800)<<10 | rune(lo-0xDC00)) + 0x10000
				si += 2
			} else {
				si++
				return si, di, illegalRuneErr(rune(u))
			}
		} else if u >= 0xDC00 && u <= 0xDFFF {
			si++
			return si, di, illegalRuneErr(rune(u))
		} else {
			cp = rune(u)
			si++
		}

		var bs []byte
		var st Status
		atEnd := flush && si == len(src)
		if c.extFromPending {
			bs, st = c.continueExtFromUnicode(cp, atEnd)
		} else {
			bs, st = c.mapFromUnicode(cp, atEnd)
		}
		switch st {
		case StatusOK:
			di, st = c.writeBytes(bs, dst, di, offsets, srcIdx)
			if st == StatusBufferOverflow {
				return si, di, &ConvError{Status: st}
			}
		case StatusBufferOverflow:
			// extension match still partial; feed it the next unit, or
			// suspend when this buffer is exhausted.
			if si >= len(src) {
				return si, di, nil
			}
		case StatusInvalidChar:
			return si, di, &ConvError{Status: StatusInvalidChar, Rune: cp, Offset: int(srcIdx)}
		}
	}

	if flush && c.fromUChar32 != 0 {
		orphan := c.fromUChar32
		c.fromUChar32 = 0
		return si, di, illegalRuneErr(orphan)
	}
	if flush && c.Table.OutputType == OutputSISO2 && c.fromPrevLen == 2 {
		// a stream may not end in double-byte mode; emit the closing SI.
		var st Status
		di, st = c.writeBytes([]byte{shiftIn}, dst, di, offsets, -1)
		c.fromPrevLen = 1
		if st == StatusBufferOverflow {
			return si, di, &ConvError{Status: st}
		}
	}
	return si, di, nil
}

func illegalRuneErr(r rune) error {
	return &ConvError{Status: StatusIllegalChar, Rune: r}
}

// sbcsMinValue is the assignment threshold for a 16-bit SBCS stage-3 word:
// the high nibble encodes the mapping kind (0xF roundtrip, 0xC
// fallback-from-private-use, 0x8 other fallback, 0x0 unassigned), and
// enabling fallbacks lowers the bar accordingly.
func (c *Converter) sbcsMinValue() uint16 {
	if c.Options.UseFallback {
		return 0x800
	}
	return 0xC00
}

// mapFromUnicode resolves one code point to its codepage byte sequence,
// including the SI/SO prefix bookkeeping and the GB 18030 / extension
// fallbacks. flush must already account for whether more input follows.
func (c *Converter) mapFromUnicode(cp rune, flush bool) ([]byte, Status) {
	if cp <= 0x7F && asciiRoundtripsBit(c.Table.asciiRoundtrips, cp) {
		return []byte{byte(cp)}, StatusOK
	}

	// The fast index collapses the stage-1/2 walk to a single lookup for
	// low code points. It bakes in the unswapped stage-3 pool, so the
	// swaplfnl option bypasses it.
	t := c.Table
	if !c.Options.SwapLFNL && t.maxFastUChar > 0 && cp <= t.maxFastUChar {
		if t.sbcsIndex != nil {
			if word := t.sbcsIndex[cp]; word >= c.sbcsMinValue() {
				return []byte{byte(word)}, StatusOK
			}
			return c.unassignedFromUnicode(cp, flush)
		}
		if t.mbcsIndex != nil && t.OutputType == OutputDBCS2 {
			if word, ok := t.fastDBCSWord(cp); ok && word != 0 {
				if word <= 0xFF {
					return []byte{byte(word)}, StatusOK
				}
				return []byte{byte(word >> 8), byte(word)}, StatusOK
			}
			// zero: unassigned here, or a fallback only the full trie
			// knows about; fall through to the three-stage lookup.
		}
	}

	entry, inRange := t.stage2Entry(cp)
	if !inRange {
		return c.unassignedFromUnicode(cp, flush)
	}

	slot := uint32(cp) & 0xF
	switch t.OutputType {
	case OutputSBCS1:
		return c.assembleSBCS(entry, cp, flush)
	case OutputDBCS2, OutputSISO2, OutputDBCSOnly:
		return c.assembleDBCS(entry, cp, slot, flush)
	case OutputMBCS3, OutputEUC3:
		return c.assembleBytes3(entry, cp, slot, flush)
	case OutputMBCS4, OutputEUC4:
		return c.assembleBytes4(entry, cp, slot, flush)
	}
	return c.unassignedFromUnicode(cp, flush)
}

func (c *Converter) assembleSBCS(entry uint32, cp rune, flush bool) ([]byte, Status) {
	word, ok := c.Table.stage3SBCSWordFrom(c.activeStage3(), entry, cp)
	if !ok || word < c.sbcsMinValue() {
		return c.unassignedFromUnicode(cp, flush)
	}
	return []byte{byte(word)}, StatusOK
}

func (c *Converter) assembleDBCS(entry uint32, cp rune, slot uint32, flush bool) ([]byte, Status) {
	roundtrip := roundtripBit(uint16(entry>>16), slot)
	if !roundtrip && !c.Options.UseFallback {
		return c.unassignedFromUnicode(cp, flush)
	}
	word, ok := c.Table.stage3Word16From(c.activeStage3(), entry, slot)
	if !ok {
		return c.unassignedFromUnicode(cp, flush)
	}
	if word == 0 && !roundtrip {
		// a zero result is a real mapping only for a roundtrip slot
		return c.unassignedFromUnicode(cp, flush)
	}
	var raw []byte
	if word <= 0xFF {
		raw = []byte{byte(word)}
	} else {
		raw = []byte{byte(word >> 8), byte(word)}
	}
	if c.Table.OutputType != OutputSISO2 {
		return raw, StatusOK
	}
	return c.wrapSISO(raw), StatusOK
}

// wrapSISO prepends the shift-in or shift-out byte when the byte width of
// the next character differs from the current shift state.
func (c *Converter) wrapSISO(raw []byte) []byte {
	want := 1
	if len(raw) == 2 {
		want = 2
	}
	if want == c.fromPrevLen {
		return raw
	}
	var prefix byte
	if want == 2 {
		prefix = shiftOut
	} else {
		prefix = shiftIn
	}
	c.fromPrevLen = want
	out := make([]byte, 0, len(raw)+1)
	out = append(out, prefix)
	out = append(out, raw...)
	return out
}

func (c *Converter) assembleBytes3(entry uint32, cp rune, slot uint32, flush bool) ([]byte, Status) {
	if !roundtripBit(uint16(entry>>16), slot) && !c.Options.UseFallback {
		return c.unassignedFromUnicode(cp, flush)
	}
	b3, ok := c.Table.stage3Bytes3From(c.activeStage3(), entry, slot)
	if !ok {
		return c.unassignedFromUnicode(cp, flush)
	}
	trimmed := trimLeadingZeros(b3[:])
	if c.Table.OutputType == OutputEUC3 && len(trimmed) > 0 {
		trimmed = prependEUCShift(b3[0], trimmed)
	}
	if len(trimmed) == 1 && trimmed[0] == 0 && !roundtripBit(uint16(entry>>16), slot) {
		return c.unassignedFromUnicode(cp, flush)
	}
	return trimmed, StatusOK
}

func (c *Converter) assembleBytes4(entry uint32, cp rune, slot uint32, flush bool) ([]byte, Status) {
	if !roundtripBit(uint16(entry>>16), slot) && !c.Options.UseFallback {
		return c.unassignedFromUnicode(cp, flush)
	}
	w, ok := c.Table.stage3Bytes4From(c.activeStage3(), entry, slot)
	if !ok {
		return c.unassignedFromUnicode(cp, flush)
	}
	raw := [4]byte{byte(w >> 24), byte(w >> 16), byte(w >> 8), byte(w)}
	trimmed := trimLeadingZeros(raw[:])
	if c.Table.OutputType == OutputEUC4 && len(trimmed) > 0 {
		trimmed = prependEUCShift(raw[0], trimmed)
	}
	if len(trimmed) == 1 && trimmed[0] == 0 && !roundtripBit(uint16(entry>>16), slot) {
		return c.unassignedFromUnicode(cp, flush)
	}
	return trimmed, StatusOK
}

// trimLeadingZeros drops leading zero bytes; a stored result's length is
// its byte count minus the leading zeros, never less than one.
func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

// prependEUCShift inspects the high bits of the first stored byte to decide
// which single-shift prefix (0x8E or 0x8F) an EUC result needs.
func prependEUCShift(firstStoredByte byte, trimmed []byte) []byte {
	switch firstStoredByte >> 6 {
	case 0b10:
		return append([]byte{singleShift2}, trimmed...)
	case 0b11:
		return append([]byte{singleShift3}, trimmed...)
	default:
		return trimmed
	}
}

func (c *Converter) writeBytes(bs []byte, dst []byte, di int, offsets []int32, srcIdx int32) (int, Status) {
	for i, b := range bs {
		if di >= len(dst) {
			for _, rest := range bs[i:] {
				c.charErrBuf[c.charErrBufLen] = rest
				c.charErrBufLen++
			}
			return di, StatusBufferOverflow
		}
		dst[di] = b
		if offsets != nil && di < len(offsets) {
			offsets[di] = srcIdx
		}
		di++
	}
	return di, StatusOK
}

// unassignedFromUnicode defers to the extension hook, then to the GB 18030
// algorithmic ranges, before reporting InvalidChar.
func (c *Converter) unassignedFromUnicode(cp rune, flush bool) ([]byte, Status) {
	if c.Options.Extension != nil {
		var tmp [8]byte
		produced, res := c.Options.Extension.MatchFromUnicode(cp, flush, tmp[:])
		switch res {
		case ExtConsumed:
			return append([]byte(nil), tmp[:produced]...), StatusOK
		case ExtPartial:
			c.extFromPending = true
			return nil, StatusBufferOverflow
		}
	}
	if c.Options.GB18030 {
		if bs, ok := gb18030Encode(cp); ok {
			return bs, StatusOK
		}
	}
	return nil, StatusInvalidChar
}

// continueExtFromUnicode feeds the next code point directly to a
// still-partial extension match, bypassing the core tables until the
// extension resolves.
func (c *Converter) continueExtFromUnicode(cp rune, flush bool) ([]byte, Status) {
	var tmp [8]byte
	produced, res := c.Options.Extension.MatchFromUnicode(cp, flush, tmp[:])
	switch res {
	case ExtConsumed:
		c.extFromPending = false
		return append([]byte(nil), tmp[:produced]...), StatusOK
	case ExtPartial:
		if flush {
			c.extFromPending = false
			return nil, StatusInvalidChar
		}
		return nil, StatusBufferOverflow
	default: // ExtNoMatch
		c.extFromPending = false
		if c.Options.GB18030 {
			if bs, ok := gb18030Encode(cp); ok {
				return bs, StatusOK
			}
		}
		return nil, StatusInvalidChar
	}
}
