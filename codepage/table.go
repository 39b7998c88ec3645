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

// Package codepage implements a bidirectional transcoder between legacy
// multi-byte codepages (SBCS, DBCS, MBCS up to 4 bytes/char, and stateful
// EBCDIC/ISO-2022-style encodings) and Unicode, driven by a compact
// precompiled mapping-table blob.
package codepage

import (
	"encoding/binary"
	"fmt"

	"github.com/dchest/siphash"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// OutputType is the shape of the bytes a table's from-Unicode side produces.
type OutputType uint8

const (
	OutputSBCS1 OutputType = iota
	OutputDBCS2
	OutputMBCS3
	OutputMBCS4
	OutputEUC3
	OutputEUC4
	OutputSISO2
	OutputDBCSOnly
	OutputExtOnly
)

func (t OutputType) String() string {
	switch t {
	case OutputSBCS1:
		return "SBCS-1"
	case OutputDBCS2:
		return "DBCS-2"
	case OutputMBCS3:
		return "MBCS-3"
	case OutputMBCS4:
		return "MBCS-4"
	case OutputEUC3:
		return "EUC-3"
	case OutputEUC4:
		return "EUC-4"
	case OutputSISO2:
		return "SISO-2"
	case OutputDBCSOnly:
		return "DBCS-ONLY"
	case OutputExtOnly:
		return "EXT-ONLY"
	default:
		return fmt.Sprintf("outputType(%d)", int(t))
	}
}

// unicodeMask bits.
const (
	maskHasSupplementary uint32 = 1 << iota
	maskHasSurrogates
)

const (
	formatMajor = 4

	headerSize       = 64 // fixed fields, see LoadTable
	toUFallbackWidth = 8  // offset(u32) + code point(u32)
)

// toUFallback maps a scalar offset accumulator value to a fallback code
// point. The table is sorted by Offset and searched by binary search.
type toUFallback struct {
	Offset int32
	Rune   rune
}

// Table is the immutable, shared in-memory representation of one codepage's
// mapping data. It is produced by LoadTable from a raw blob and may be
// shared by any number of Converters opened against it; nothing in Table is
// mutated after load except the lazily-built LF/NL swap clone (see
// ebcdic.go), which is guarded by its own mutex.
type Table struct {
	Name            string
	OutputType      OutputType
	UnicodeMaskBits uint32

	MaxBytesPerChar int
	MinBytesPerChar int

	stateTable  []uint32 // len = CountStates*256, row-major
	CountStates int

	unicodeCodeUnits []uint16
	toUFallbacks     []toUFallback // sorted by Offset

	stage1 []uint16 // len 64 (BMP-only) or 1088 (supplementary-aware)
	stage2 []uint32 // 64-entry blocks; SBCS uses only the low 16 bits
	stage3 []byte   // raw pool, interpreted per OutputType

	asciiRoundtrips uint32

	sbcsIndex    []uint16 // derived at load time for SBCS tables
	mbcsIndex    []uint32 // carried in the file for MBCS-family tables (version.minor >= 3)
	maxFastUChar rune
	utf8Friendly bool

	// When set, a converter whose scratch state is at state 0 substitutes
	// dbcsOnlyState so that SI/SO shift codes become illegal within its
	// view of the table.
	hasDBCSOnlyState bool
	dbcsOnlyState    uint8

	extBaseName string      // EXT-ONLY files: base converter name
	ExtIndexes  interface{} // opaque handle for the extension module

	swap *swapCache // lazily-built LF/NL swap clone, see ebcdic.go

	Fingerprint uint64   // siphash-2-4 of the raw blob, for diagnostics and log correlation
	ContentHash [32]byte // blake2b-256 of the raw blob, for registry staleness checks
}

// LoadTable parses a precompiled table blob into an immutable Table. The
// blob may optionally be zstd-compressed (detected by the zstd magic number
// before the format version is read); LoadTable transparently decompresses
// it first.
//
// File reading and converter-registry lookups happen elsewhere; LoadTable's
// only job is turning an in-memory blob into lookup structures. EXT-ONLY
// blobs name a base converter whose table must be resolved externally; use
// LoadTableWithBase for those.
func LoadTable(name string, blob []byte) (*Table, error) {
	return loadTable(name, blob, nil)
}

// LoadTableWithBase is LoadTable with a resolver for EXT-ONLY blobs:
// resolve is called with the base converter name embedded in the blob and
// must return that converter's already-loaded table. The base may not
// itself be EXT-ONLY.
func LoadTableWithBase(name string, blob []byte, resolve func(string) (*Table, error)) (*Table, error) {
	return loadTable(name, blob, resolve)
}

const zstdMagic = "\x28\xb5\x2f\xfd"

func loadTable(name string, blob []byte, resolveBase func(string) (*Table, error)) (*Table, error) {
	if len(blob) >= 4 && string(blob[:4]) == zstdMagic {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, &ConvError{Err: err}
		}
		defer dec.Close()
		out, err := dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, &ConvError{Err: fmt.Errorf("%w: zstd decompress", err)}
		}
		blob = out
	}

	if len(blob) < headerSize {
		return nil, &ConvError{Err: errShortHeader}
	}
	major := blob[0]
	minor := blob[1]
	if major != formatMajor || minor > 3 {
		return nil, &ConvError{Err: fmt.Errorf("%w: version %d.%d", errBadVersion, major, minor)}
	}

	flags := binary.LittleEndian.Uint32(blob[4:8])
	outType := OutputType(flags & 0xFF)
	extSubBlobOffset := flags >> 8
	if outType > OutputExtOnly {
		return nil, &ConvError{Err: fmt.Errorf("%w: %d", errUnknownOutput, outType)}
	}

	t := &Table{
		Name:        name,
		OutputType:  outType,
		Fingerprint: siphash.Hash(0, 0, blob),
		ContentHash: blake2b.Sum256(blob),
	}

	if outType == OutputExtOnly {
		// base-name (NUL-terminated) immediately after the header, then an
		// opaque extension sub-blob.
		rest := blob[headerSize:]
		nul := indexByte(rest, 0)
		if nul < 0 {
			return nil, &ConvError{Err: errTruncatedBlob}
		}
		baseName := string(rest[:nul])
		if resolveBase == nil {
			return nil, &ConvError{Err: fmt.Errorf("codepage: EXT-ONLY table %q needs a base-table resolver", name)}
		}
		base, err := resolveBase(baseName)
		if err != nil {
			return nil, err
		}
		if base.OutputType == OutputExtOnly {
			return nil, &ConvError{Err: errExtDepth}
		}
		fp, ch := t.Fingerprint, t.ContentHash
		*t = *base
		t.Name = name
		t.OutputType = OutputExtOnly
		t.extBaseName = base.Name
		t.Fingerprint = fp
		t.ContentHash = ch

		// A base that supports SI/SO (state 0 transitions on the shift-out
		// byte) turns this view into a DBCS-only one; a non-stateful base
		// instead gets its single-byte finals routed into an all-illegal
		// sink state.
		if base.CountStates > 0 {
			e := unpackEntry(base.stateTable[0x0E])
			if !e.final && e.nextState != 0 {
				t.OutputType = OutputDBCSOnly
				installDBCSOnlyState(t)
			} else {
				cloneWithIllegalSink(t)
			}
		}
		if extSubBlobOffset != 0 && int(extSubBlobOffset) < len(blob) {
			t.ExtIndexes = blob[extSubBlobOffset:]
		}
		return t, nil
	}

	countStates := binary.LittleEndian.Uint32(blob[8:12])
	countToUFallbacks := binary.LittleEndian.Uint32(blob[12:16])
	offsetToUCodeUnits := binary.LittleEndian.Uint32(blob[16:20])
	offsetFromUTable := binary.LittleEndian.Uint32(blob[20:24])
	offsetFromUBytes := binary.LittleEndian.Uint32(blob[24:28])
	fromUBytesLength := binary.LittleEndian.Uint32(blob[28:32])
	unicodeMaskBits := binary.LittleEndian.Uint32(blob[32:36])
	asciiRoundtrips := binary.LittleEndian.Uint32(blob[36:40])
	maxBytesPerChar := binary.LittleEndian.Uint32(blob[40:44])
	minBytesPerChar := binary.LittleEndian.Uint32(blob[44:48])
	stage1Count := binary.LittleEndian.Uint32(blob[48:52])
	maxFastUChar := binary.LittleEndian.Uint32(blob[52:56])

	t.UnicodeMaskBits = unicodeMaskBits
	t.asciiRoundtrips = asciiRoundtrips
	t.MaxBytesPerChar = int(maxBytesPerChar)
	t.MinBytesPerChar = int(minBytesPerChar)
	t.maxFastUChar = rune(maxFastUChar)
	t.CountStates = int(countStates)

	stateBytes := int(countStates) * 1024
	if headerSize+stateBytes > len(blob) {
		return nil, &ConvError{Err: errTruncatedBlob}
	}
	t.stateTable = make([]uint32, int(countStates)*256)
	raw := blob[headerSize : headerSize+stateBytes]
	for i := range t.stateTable {
		t.stateTable[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	fbOff := headerSize + stateBytes
	if fbOff+int(countToUFallbacks)*toUFallbackWidth > len(blob) {
		return nil, &ConvError{Err: errTruncatedBlob}
	}
	t.toUFallbacks = make([]toUFallback, countToUFallbacks)
	for i := range t.toUFallbacks {
		b := blob[fbOff+i*toUFallbackWidth:]
		t.toUFallbacks[i] = toUFallback{
			Offset: int32(binary.LittleEndian.Uint32(b)),
			Rune:   rune(binary.LittleEndian.Uint32(b[4:])),
		}
	}

	if int(offsetToUCodeUnits) > len(blob) || int(offsetFromUTable) > len(blob) ||
		int(offsetFromUBytes) > len(blob) || int(offsetFromUBytes)+int(fromUBytesLength) > len(blob) {
		return nil, &ConvError{Err: errTruncatedBlob}
	}
	nCodeUnits := (int(offsetFromUTable) - int(offsetToUCodeUnits)) / 2
	t.unicodeCodeUnits = make([]uint16, nCodeUnits)
	for i := range t.unicodeCodeUnits {
		t.unicodeCodeUnits[i] = binary.LittleEndian.Uint16(blob[int(offsetToUCodeUnits)+i*2:])
	}

	sbcsLike := outType == OutputSBCS1
	entryWidth := 4
	if sbcsLike {
		entryWidth = 2
	}
	t.stage1 = make([]uint16, stage1Count)
	for i := range t.stage1 {
		t.stage1[i] = binary.LittleEndian.Uint16(blob[int(offsetFromUTable)+i*2:])
	}
	stage2Off := int(offsetFromUTable) + int(stage1Count)*2
	stage2Bytes := int(offsetFromUBytes) - stage2Off
	stage2Count := stage2Bytes / entryWidth
	t.stage2 = make([]uint32, stage2Count)
	for i := range t.stage2 {
		if sbcsLike {
			t.stage2[i] = uint32(binary.LittleEndian.Uint16(blob[stage2Off+i*2:]))
		} else {
			t.stage2[i] = binary.LittleEndian.Uint32(blob[stage2Off+i*4:])
		}
	}

	t.stage3 = append([]byte(nil), blob[offsetFromUBytes:int(offsetFromUBytes)+int(fromUBytesLength)]...)

	if minor >= 3 && !sbcsLike {
		mbcsIdxOff := int(offsetFromUBytes) + int(fromUBytesLength)
		limit := len(blob)
		if extSubBlobOffset != 0 {
			limit = int(extSubBlobOffset)
		}
		n := (limit - mbcsIdxOff) / 4
		if n > 0 {
			t.mbcsIndex = make([]uint32, n)
			for i := range t.mbcsIndex {
				t.mbcsIndex[i] = binary.LittleEndian.Uint32(blob[mbcsIdxOff+i*4:])
			}
		}
	}

	if extSubBlobOffset != 0 && int(extSubBlobOffset) < len(blob) {
		t.ExtIndexes = blob[extSubBlobOffset:]
	}

	t.utf8Friendly = t.maxFastUChar > 0 && t.UnicodeMaskBits&maskHasSurrogates == 0
	if sbcsLike {
		buildSBCSIndex(t)
	}
	t.swap = &swapCache{}

	return t, nil
}

// buildSBCSIndex derives the fast from-Unicode index for an SBCS table by
// walking stage 1/2 once: one 16-bit result word per code point up to
// maxFastUChar, so the hot path skips two indirections.
func buildSBCSIndex(t *Table) {
	if t.maxFastUChar <= 0 {
		return
	}
	n := int(t.maxFastUChar) + 1
	t.sbcsIndex = make([]uint16, n)
	for c := rune(0); c < rune(n); c++ {
		e, ok := t.stage2Entry(c)
		if !ok {
			continue
		}
		word, ok := t.stage3SBCSWord(e, c)
		if ok {
			t.sbcsIndex[c] = word
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// stage1Index resolves a code point to its stage-1 entry: one entry per
// 1024-code-point block, 64 entries for BMP-only tables and 1088 for
// supplementary-aware ones.
func (t *Table) stage1Index(c rune) uint16 {
	if len(t.stage1) > 64 {
		return t.stage1[(c>>10)&0x7FF]
	}
	return t.stage1[(c>>10)&0x3F]
}

// stage2Entry computes stage2[stage1Index(c) + ((c>>4) & 0x3F)] and reports
// whether the code point falls inside the table's declared range at all.
func (t *Table) stage2Entry(c rune) (uint32, bool) {
	if c < 0 || c > 0x10FFFF {
		return 0, false
	}
	if len(t.stage1) <= 64 && c > 0xFFFF {
		return 0, false
	}
	idx := uint32(t.stage1Index(c)) + uint32((c>>4)&0x3F)
	if int(idx) >= len(t.stage2) {
		return 0, false
	}
	return t.stage2[idx], true
}

// stage3SBCSWord resolves the 16-bit SBCS stage-3 result word for (entry, c).
func (t *Table) stage3SBCSWord(entry uint32, c rune) (uint16, bool) {
	return t.stage3SBCSWordFrom(t.stage3, entry, c)
}

// stage3SBCSWordFrom is stage3SBCSWord against an explicit stage-3 pool, so
// callers can substitute the LF/NL-swapped clone.
func (t *Table) stage3SBCSWordFrom(stage3 []byte, entry uint32, c rune) (uint16, bool) {
	blockIdx := entry & 0xFFFF
	slot := uint32(c) & 0xF
	off := (int(blockIdx)*16 + int(slot)) * 2
	if off+2 > len(stage3) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(stage3[off:]), true
}

// stage3MBCSWord16 resolves the 16-bit DBCS/SISO stage-3 result word.
func (t *Table) stage3MBCSWord16(entry uint32, slot uint32) (uint16, bool) {
	return t.stage3Word16From(t.stage3, entry, slot)
}

// stage3Word16From is stage3MBCSWord16 against an explicit stage-3 pool.
func (t *Table) stage3Word16From(stage3 []byte, entry uint32, slot uint32) (uint16, bool) {
	blockIdx := entry & 0xFFFF
	off := (int(blockIdx)*16 + int(slot)) * 2
	if off+2 > len(stage3) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(stage3[off:]), true
}

// stage3Bytes3 resolves the big-endian 3-byte MBCS-3/EUC-3 stage-3 result.
func (t *Table) stage3Bytes3(entry uint32, slot uint32) ([3]byte, bool) {
	return t.stage3Bytes3From(t.stage3, entry, slot)
}

// stage3Bytes3From is stage3Bytes3 against an explicit stage-3 pool.
func (t *Table) stage3Bytes3From(stage3 []byte, entry uint32, slot uint32) ([3]byte, bool) {
	blockIdx := entry & 0xFFFF
	off := (int(blockIdx)*16 + int(slot)) * 3
	var out [3]byte
	if off+3 > len(stage3) {
		return out, false
	}
	copy(out[:], stage3[off:off+3])
	return out, true
}

// stage3Bytes4 resolves the 32-bit MBCS-4/EUC-4 stage-3 result.
func (t *Table) stage3Bytes4(entry uint32, slot uint32) (uint32, bool) {
	return t.stage3Bytes4From(t.stage3, entry, slot)
}

// stage3Bytes4From is stage3Bytes4 against an explicit stage-3 pool.
func (t *Table) stage3Bytes4From(stage3 []byte, entry uint32, slot uint32) (uint32, bool) {
	blockIdx := entry & 0xFFFF
	off := (int(blockIdx)*16 + int(slot)) * 4
	if off+4 > len(stage3) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(stage3[off:]), true
}

// fastDBCSWord resolves a code point through mbcsIndex, the auxiliary
// index carried in version-minor >= 3 table files: one entry per
// 64-code-point block, giving the base word offset of that block's run of
// 16-bit stage-3 results. A zero word means the code point has no
// roundtrip mapping here and the full trie must decide.
func (t *Table) fastDBCSWord(cp rune) (uint16, bool) {
	blk := int(cp >> 6)
	if blk >= len(t.mbcsIndex) {
		return 0, false
	}
	off := (int(t.mbcsIndex[blk]) + int(cp&0x3F)) * 2
	if off+2 > len(t.stage3) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(t.stage3[off:]), true
}

// installDBCSOnlyState appends a substitute initial state in which the
// shift-out byte is illegal; the to-Unicode engine uses it instead of state
// 0, so shift codes cannot occur in a DBCS-only converter view.
func installDBCSOnlyState(t *Table) {
	newState := make([]uint32, 256)
	copy(newState, t.stateTable[0:256])
	newState[0x0E] = packFinal(0, uint8(actionIllegal), 0)
	clone := append([]uint32(nil), t.stateTable...)
	clone = append(clone, newState...)
	t.stateTable = clone
	t.hasDBCSOnlyState = true
	t.dbcsOnlyState = uint8(t.CountStates)
	t.CountStates++
}

// cloneWithIllegalSink clones the state table and appends a new all-illegal
// state, rewriting every final single-byte entry in state 0 to transition
// into it. Single-byte characters of the base thereby become two-byte
// illegal sequences in the DBCS-over-non-stateful view.
func cloneWithIllegalSink(t *Table) {
	illegalState := uint8(t.CountStates)
	sink := make([]uint32, 256)
	for b := range sink {
		sink[b] = packFinal(0, uint8(actionIllegal), 0)
	}
	clone := append([]uint32(nil), t.stateTable...)
	clone = append(clone, sink...)
	for b := 0; b < 256; b++ {
		e := unpackEntry(clone[b])
		if e.final {
			clone[b] = packTransition(illegalState, 0)
		}
	}
	t.stateTable = clone
	t.CountStates++
}

// UTF8Friendly reports whether the table's declared maxFastUChar is high
// enough and it carries no surrogate mappings, making it eligible for the
// UTF-8 direct bridge's fast index path.
func (t *Table) UTF8Friendly() bool { return t.utf8Friendly }

// MaxFastUChar is the highest code point covered by the table's fast index.
func (t *Table) MaxFastUChar() rune { return t.maxFastUChar }

// Type classifies the converter: SBCS if one state and one byte per
// character, EBCDIC_STATEFUL if SI/SO, DBCS if min=max=2 bytes/char, else
// MBCS. A table rewritten to DBCS-ONLY during load reports DBCS even when
// its underlying base is a stateful one.
func (t *Table) Type() ConverterType {
	switch {
	case t.OutputType == OutputSISO2:
		return TypeEBCDICStateful
	case t.OutputType == OutputDBCSOnly:
		return TypeDBCS
	case t.CountStates == 1 && t.MaxBytesPerChar == 1:
		return TypeSBCS
	case t.MinBytesPerChar == 2 && t.MaxBytesPerChar == 2:
		return TypeDBCS
	default:
		return TypeMBCS
	}
}

// ConverterType is the coarse converter classification returned by Type.
type ConverterType int

const (
	TypeSBCS ConverterType = iota
	TypeDBCS
	TypeMBCS
	TypeEBCDICStateful
)

func (c ConverterType) String() string {
	switch c {
	case TypeSBCS:
		return "SBCS"
	case TypeDBCS:
		return "DBCS"
	case TypeMBCS:
		return "MBCS"
	case TypeEBCDICStateful:
		return "EBCDIC_STATEFUL"
	default:
		return "unknown"
	}
}
