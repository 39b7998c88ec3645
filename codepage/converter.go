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

import "github.com/google/uuid"

// Converter is one open conversion context against a shared Table. A
// Converter is not safe for concurrent use by multiple goroutines;
// conversion mutates its scratch state in place. Multiple Converters
// sharing a Table may run concurrently.
type Converter struct {
	ID      uuid.UUID
	Table   *Table
	Options Options

	// to-Unicode scratch.
	toStatus int32 // offset accumulator
	toMode   uint8 // current state
	toULen   int   // bytes buffered for the in-flight character
	toUBytes [8]byte

	uCharErr    [4]uint16 // parked code units after a buffer overflow
	uCharErrLen int
	extPending  bool // a to-Unicode extension match is mid-flight

	// from-Unicode scratch.
	fromUChar32    rune // pending high surrogate, or 0
	fromPrevLen    int  // SI/SO: 1 (single-byte mode) or 2 (double-byte mode); 0 otherwise
	charErrBuf     [8]byte
	charErrBufLen  int
	extFromPending bool // a from-Unicode extension match is mid-flight

	SubChar1 byte   // substitution byte for unmappable code points <= 0xFF
	SubChar  []byte // substitution bytes for unmappable code points > 0xFF

	// UTF-8 direct-bridge scratch: a truncated trailing UTF-8 sequence
	// carried across calls.
	utf8Buf    [4]byte
	utf8BufLen int
}

// Open creates a Converter against table t, applying opts in order. The
// GB18030 option is additionally inferred from the table name even when
// not explicitly requested.
func Open(t *Table, opts ...Option) *Converter {
	o := Options{UseFallback: false}
	for _, opt := range opts {
		opt(&o)
	}
	if gb18030ByName(t.Name) {
		o.GB18030 = true
	}
	c := &Converter{
		ID:       uuid.New(),
		Table:    t,
		Options:  o,
		SubChar1: '?',
		SubChar:  []byte{0x1A}, // SUB, a conventional default
	}
	if t.Type() == TypeEBCDICStateful || t.OutputType == OutputSISO2 {
		c.fromPrevLen = 1
	}
	return c
}

// Reset clears all resumable scratch state, as if the Converter had just
// been opened.
func (c *Converter) Reset() {
	c.toStatus = 0
	c.toMode = 0
	c.toULen = 0
	c.uCharErrLen = 0
	c.extPending = false
	c.fromUChar32 = 0
	c.charErrBufLen = 0
	c.extFromPending = false
	c.utf8BufLen = 0
	if c.Table.OutputType == OutputSISO2 {
		c.fromPrevLen = 1
	}
}

// activeToURow returns the 256 to-Unicode state-table entries for state,
// substituting the LF/NL-swapped row 0 when swaplfnl is active and state
// is the initial state (only row 0 is ever cloned).
func (c *Converter) activeToURow(state uint8) []uint32 {
	if state == 0 && c.Options.SwapLFNL {
		row0, _ := c.Table.swapView()
		return row0
	}
	base := int(state) * 256
	return c.Table.stateTable[base : base+256]
}

// activeStage3 returns the from-Unicode stage-3 byte pool, substituting the
// LF/NL-swapped clone when swaplfnl is active.
func (c *Converter) activeStage3() []byte {
	if c.Options.SwapLFNL {
		_, stage3 := c.Table.swapView()
		return stage3
	}
	return c.Table.stage3
}
