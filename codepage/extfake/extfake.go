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

// Package extfake is a table-driven stand-in for the opaque m:n
// extension-table module codepage.Extension abstracts over.
// It exists so the extension protocol can be exercised end to end; nothing
// about it is tied to any real codepage's actual supplementary mapping data.
package extfake

import "github.com/go-textconv/textconv/codepage"

// Entry is one m:n mapping: a byte sequence on the legacy side and the
// Unicode code point sequence it stands for.
type Entry struct {
	Bytes []byte
	Runes []rune
}

// Fake implements codepage.Extension over a fixed entry table. It keeps a
// pending rune prefix across from-Unicode calls, as a real extension
// module's internal trie would; on the to-Unicode side the core passes the
// accumulated bytes on every call, so no byte prefix is kept.
type Fake struct {
	entries []Entry

	pendingRunes []rune
}

var _ codepage.Extension = (*Fake)(nil)

// New builds a Fake from entries. Every entry must have at least one byte
// and one rune; New does not validate this, matching the package's role as
// a test double rather than a production loader.
func New(entries []Entry) *Fake {
	return &Fake{entries: entries}
}

// MatchToUnicode implements codepage.Extension. The core hands it the full
// accumulated byte sequence on every call (toUBytes in the core's own
// scratch already does the accumulating), so MatchToUnicode itself is
// stateless: it just classifies bytes against the table.
func (f *Fake) MatchToUnicode(bytes []byte, flush bool, dst []uint16) (int, codepage.ExtMatch) {
	for _, e := range f.entries {
		if bytesEqual(e.Bytes, bytes) {
			n := copy(dst, runesToUTF16(e.Runes))
			return n, codepage.ExtConsumed
		}
	}
	if !flush && isPrefixOfSomeBytes(f.entries, bytes) {
		return 0, codepage.ExtPartial
	}
	return 0, codepage.ExtNoMatch
}

// MatchFromUnicode implements codepage.Extension. Unlike MatchToUnicode,
// the core only ever hands it one code point per call, so Fake itself must
// accumulate the pending rune sequence: from-Unicode resumption is driven
// by repeated single-code-point calls, not a buffer.
func (f *Fake) MatchFromUnicode(c rune, flush bool, dst []byte) (int, codepage.ExtMatch) {
	f.pendingRunes = append(f.pendingRunes, c)

	for _, e := range f.entries {
		if runesEqual(e.Runes, f.pendingRunes) {
			f.pendingRunes = nil
			n := copy(dst, e.Bytes)
			return n, codepage.ExtConsumed
		}
	}
	if !flush && isPrefixOfSomeRunes(f.entries, f.pendingRunes) {
		return 0, codepage.ExtPartial
	}
	f.pendingRunes = nil
	return 0, codepage.ExtNoMatch
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isPrefixOfSomeBytes(entries []Entry, prefix []byte) bool {
	for _, e := range entries {
		if len(prefix) < len(e.Bytes) && bytesEqual(e.Bytes[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

func isPrefixOfSomeRunes(entries []Entry, prefix []rune) bool {
	for _, e := range entries {
		if len(prefix) < len(e.Runes) && runesEqual(e.Runes[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

func runesToUTF16(runes []rune) []uint16 {
	var out []uint16
	for _, r := range runes {
		switch {
		case r < 0x10000:
			out = append(out, uint16(r))
		default:
			r -= 0x10000
			out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		}
	}
	return out
}
