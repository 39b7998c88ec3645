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

// ExtMatch is the result of a single call into an Extension.
type ExtMatch int

const (
	// ExtNoMatch means the extension module does not map this input at
	// all; the core proceeds to emit InvalidChar.
	ExtNoMatch ExtMatch = iota
	// ExtConsumed means the extension module mapped the input and wrote
	// output; the core proceeds normally.
	ExtConsumed
	// ExtPartial means the match is incomplete; the core consults the
	// extension again with the following input, taken from the same buffer
	// when more is there, and otherwise suspends until the caller supplies
	// more.
	ExtPartial
)

// Extension is the external m:n extension-table module; only this
// interface is visible to the core. The core calls it at exactly three
// points: on to-Unicode when the main tables report an unassigned byte
// sequence, on from-Unicode when the main tables report an unassigned code
// point, and with each further input byte or code point to continue a
// previously partial match.
type Extension interface {
	// MatchToUnicode attempts to map the captured byte sequence bytes
	// (spanning possibly one or more calls when flush is false and the
	// previous attempt returned ExtPartial) to UTF-16 code units in dst,
	// returning how many were produced.
	MatchToUnicode(bytes []byte, flush bool, dst []uint16) (produced int, result ExtMatch)

	// MatchFromUnicode attempts to map code point c to bytes in dst,
	// returning how many were produced.
	MatchFromUnicode(c rune, flush bool, dst []byte) (produced int, result ExtMatch)
}
