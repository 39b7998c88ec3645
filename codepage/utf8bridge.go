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
	textconvutf8 "github.com/go-textconv/textconv/utf8"
)

// utf8MinLegal and utf8Offsets are the constant tables for decoding UTF-8
// sequences inline without a rune-by-rune library call.
var (
	utf8MinLegal = [5]rune{0, 0, 0x80, 0x800, 0x10000}
	utf8Offsets  = [5]rune{0, 0, 0x3080, 0xE2080, 0x3C82080}
)

// asciiPrefixLen returns the number of leading bytes of src that are plain
// ASCII (high bit clear); the SWAR scan itself lives in the utf8 package.
func asciiPrefixLen(src []byte) int {
	return textconvutf8.AsciiPrefixLen(src)
}

// SBCSFromUTF8 decodes UTF-8 from src and writes SBCS codepage bytes to dst
// in one pass, bypassing the UTF-16 intermediate. It is meant for tables
// whose Type() is TypeSBCS; the implementation is shared with DBCSFromUTF8
// and dispatches on the table's OutputType.
func (c *Converter) SBCSFromUTF8(src []byte, dst []byte, flush bool) (consumed, produced int, err error) {
	return c.utf8Bridge(src, dst, flush)
}

// DBCSFromUTF8 is SBCSFromUTF8's DBCS counterpart. Both share utf8Bridge;
// mapFromUnicode already dispatches on the table's OutputType, so the two
// entries differ only in which tables they are meant to be opened against.
func (c *Converter) DBCSFromUTF8(src []byte, dst []byte, flush bool) (consumed, produced int, err error) {
	return c.utf8Bridge(src, dst, flush)
}

func (c *Converter) utf8Bridge(src []byte, dst []byte, flush bool) (consumed, produced int, err error) {
	si := 0
	di := 0

	if c.utf8BufLen > 0 {
		si, err = c.resumeUTF8Partial(src, dst, &di, flush)
		if err != nil || (c.utf8BufLen > 0 && !flush) {
			return si, di, err
		}
	}

	// Clip the scan limit backward so a truncated trailing sequence is
	// never started inside the hot loop: the longest UTF-8
	// sequence is 4 bytes, so only the last 3 bytes can possibly begin one.
	limit := len(src)
	if !flush {
		start := limit - 3
		if start < 0 {
			start = 0
		}
		for i := start; i < limit; i++ {
			need := utf8SeqLen(src[i])
			if need > 1 && i+need > limit {
				limit = i
				break
			}
		}
	}

	for si < limit {
		// ASCII bytes are copied through only while the table maps them to
		// themselves; any other byte takes the full lookup below.
		n := asciiPrefixLen(src[si:limit])
		for k := 0; k < n; k++ {
			if !asciiRoundtripsBit(c.Table.asciiRoundtrips, rune(src[si+k])) {
				n = k
				break
			}
		}
		if n > 0 {
			for k := 0; k < n; k++ {
				if di >= len(dst) {
					return si + k, di, &ConvError{Status: StatusBufferOverflow}
				}
				dst[di] = src[si+k]
				di++
			}
			si += n
			continue
		}

		lead := src[si]
		need := utf8SeqLen(lead)
		if need == 0 || si+need > limit {
			if need == 0 {
				return si + 1, di, &ConvError{Status: StatusIllegalChar, Bytes: []byte{lead}}
			}
			break
		}

		cp, ok := decodeUTF8Seq(src[si : si+need])
		if !ok {
			return si + need, di, &ConvError{Status: StatusIllegalChar, Bytes: append([]byte(nil), src[si:si+need]...)}
		}

		bs, st := c.bridgeMap(cp, flush && si+need == len(src))
		switch st {
		case StatusOK:
			var wst Status
			di, wst = c.writeBytes(bs, dst, di, nil, 0)
			if wst == StatusBufferOverflow {
				return si, di, &ConvError{Status: wst}
			}
		case StatusBufferOverflow:
			// extension match still partial; the next decoded code point
			// continues it.
			if si+need >= len(src) {
				return si + need, di, nil
			}
		case StatusInvalidChar:
			return si + need, di, &ConvError{Status: StatusInvalidChar, Rune: cp, Offset: si}
		}
		si += need
	}

	if si < len(src) {
		c.utf8BufLen = copy(c.utf8Buf[:], src[si:])
		si = len(src)
		if flush {
			err = &ConvError{Status: StatusTruncated, Bytes: append([]byte(nil), c.utf8Buf[:c.utf8BufLen]...)}
			c.utf8BufLen = 0
		}
	}
	return si, di, err
}

// resumeUTF8Partial folds previously-captured trailing bytes together with
// fresh input until the lead byte's declared sequence length is reached,
// then decodes and emits it. The collected bytes are validated only once
// the sequence is complete.
func (c *Converter) resumeUTF8Partial(src []byte, dst []byte, di *int, flush bool) (int, error) {
	need := utf8SeqLen(c.utf8Buf[0])
	si := 0
	for c.utf8BufLen < need && si < len(src) {
		c.utf8Buf[c.utf8BufLen] = src[si]
		c.utf8BufLen++
		si++
	}
	if c.utf8BufLen < need {
		if flush {
			captured := append([]byte(nil), c.utf8Buf[:c.utf8BufLen]...)
			c.utf8BufLen = 0
			return si, &ConvError{Status: StatusTruncated, Bytes: captured}
		}
		return si, nil
	}

	cp, ok := decodeUTF8Seq(c.utf8Buf[:need])
	captured := append([]byte(nil), c.utf8Buf[:need]...)
	c.utf8BufLen = 0
	if !ok {
		return si, &ConvError{Status: StatusIllegalChar, Bytes: captured}
	}

	bs, st := c.bridgeMap(cp, flush && si == len(src))
	switch st {
	case StatusOK:
		var wst Status
		*di, wst = c.writeBytes(bs, dst, *di, nil, 0)
		if wst == StatusBufferOverflow {
			return si, &ConvError{Status: wst}
		}
		return si, nil
	case StatusBufferOverflow:
		return si, nil
	default:
		return si, &ConvError{Status: StatusInvalidChar, Rune: cp}
	}
}

// bridgeMap routes one decoded code point either to a still-partial
// extension match or to the regular lookup, so the bridge honors the same
// extension continuation contract as the UTF-16 path.
func (c *Converter) bridgeMap(cp rune, flush bool) ([]byte, Status) {
	if c.extFromPending {
		return c.continueExtFromUnicode(cp, flush)
	}
	return c.mapFromUnicode(cp, flush)
}

// utf8SeqLen classifies a lead byte's declared sequence length (1-4), or 0
// if it cannot start a sequence (a stray continuation or trailing byte).
func utf8SeqLen(lead byte) int {
	switch {
	case lead < 0x80:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}

// decodeUTF8Seq reassembles a UTF-8 sequence of the declared length using
// utf8Offsets, validating against utf8MinLegal, surrogate exclusion, and
// the supplementary-plane ceiling.
func decodeUTF8Seq(b []byte) (rune, bool) {
	n := len(b)
	if n < 1 || n > 4 {
		return 0, false
	}
	for i := 1; i < n; i++ {
		if b[i]&0xC0 != 0x80 {
			return 0, false
		}
	}
	var acc rune
	for _, x := range b {
		acc = acc<<6 + rune(x)
	}
	acc -= utf8Offsets[n]
	if acc < utf8MinLegal[n] {
		return 0, false
	}
	if acc >= 0xD800 && acc <= 0xDFFF {
		return 0, false
	}
	if n == 4 && (acc < 0x10000 || acc > 0x10FFFF) {
		return 0, false
	}
	return acc, true
}
