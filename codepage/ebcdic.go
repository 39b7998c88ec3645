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

import "sync"

// EBCDIC NL and LF byte values that the swaplfnl option exchanges.
const (
	ebcdicNL byte = 0x15
	ebcdicLF byte = 0x25
)

// swapCache holds the lazily-built, table-scoped clone of state-table row 0
// and the stage-3 byte pool with EBCDIC bytes 0x15/0x25 exchanged in both
// directions. It is the only lazily-constructed mutable resource in this
// package. Construction happens outside the lock so two racing goroutines
// never serialize on the clone work; whoever installs second drops its own
// copy.
type swapCache struct {
	mu     sync.Mutex
	ready  bool
	state0 []uint32
	stage3 []byte
}

// swapView returns the LF/NL-swapped state-table row 0 and stage-3 pool for
// t, building them on first use. Only SBCS and SISO tables whose base
// mappings are the standard EBCDIC LF/NL are eligible; all others silently
// return t's unmodified tables.
func (t *Table) swapView() (state0 []uint32, stage3 []byte) {
	if t.OutputType != OutputSBCS1 && t.OutputType != OutputSISO2 {
		return t.stateTable, t.stage3
	}
	if t.swap == nil || len(t.stateTable) < 256 {
		return t.stateTable, t.stage3
	}

	t.swap.mu.Lock()
	ready := t.swap.ready
	t.swap.mu.Unlock()
	if ready {
		return t.swap.state0, t.swap.stage3
	}

	built, ok := buildSwapClone(t)
	if !ok {
		return t.stateTable[:256], t.stage3
	}

	t.swap.mu.Lock()
	defer t.swap.mu.Unlock()
	if t.swap.ready {
		// another goroutine installed its clone first; discard ours.
		return t.swap.state0, t.swap.stage3
	}
	t.swap.state0 = built.state0
	t.swap.stage3 = built.stage3
	t.swap.ready = true
	return t.swap.state0, t.swap.stage3
}

type swapped struct {
	state0 []uint32
	stage3 []byte
}

// buildSwapClone clones row 0 of the to-Unicode state table and the
// from-Unicode stage-3 byte pool and exchanges the entries/bytes that
// encode EBCDIC NL (0x15) and LF (0x25) in both directions. It reports
// ok=false when the base mappings are not the standard EBCDIC LF/NL pair,
// in which case the swap option is a silent no-op.
func buildSwapClone(t *Table) (swapped, bool) {
	nlEntry := unpackEntry(t.stateTable[ebcdicNL])
	lfEntry := unpackEntry(t.stateTable[ebcdicLF])
	if !isStandardLFNL(t, nlEntry, lfEntry) {
		return swapped{}, false
	}

	state0 := append([]uint32(nil), t.stateTable[:256]...)
	state0[ebcdicNL], state0[ebcdicLF] = state0[ebcdicLF], state0[ebcdicNL]

	stage3 := append([]byte(nil), t.stage3...)
	swapFromUWord(t, stage3, 0x000A, 0x0085)

	return swapped{state0: state0, stage3: stage3}, true
}

// swapFromUWord exchanges the from-Unicode stage-3 16-bit result words for
// code points a and b in the (already-cloned) stage3 pool.
func swapFromUWord(t *Table, stage3 []byte, a, b rune) {
	ea, oka := t.stage2Entry(a)
	eb, okb := t.stage2Entry(b)
	if !oka || !okb {
		return
	}
	ia := (int(ea&0xFFFF)*16 + int(a&0xF)) * 2
	ib := (int(eb&0xFFFF)*16 + int(b&0xF)) * 2
	if ia+2 > len(stage3) || ib+2 > len(stage3) {
		return
	}
	stage3[ia], stage3[ia+1], stage3[ib], stage3[ib+1] =
		stage3[ib], stage3[ib+1], stage3[ia], stage3[ia+1]
}

// isStandardLFNL reports whether bytes 0x15/0x25 decode to U+0085 (NEL) and
// U+000A (LF) respectively, the standard EBCDIC assignment that swaplfnl
// exchanges. Any other assignment leaves the table untouched.
func isStandardLFNL(t *Table, nl, lf stateEntry) bool {
	if !nl.final || !lf.final {
		return false
	}
	nlEmit := decodeFinal(nl, 0)
	lfEmit := decodeFinal(lf, 0)
	return nlEmit.kind == emitOne && nlEmit.u1 == 0x0085 &&
		lfEmit.kind == emitOne && lfEmit.u1 == 0x000A
}
