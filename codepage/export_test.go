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

// Exported-for-test aliases so codepage_test (an external test package, used
// to avoid an import cycle with extfake) can reach internals that only
// internal test files (e.g. sbcs_test.go's buildCP37) otherwise expose.

var BuildCP37 = buildCP37

const ActionUnassigned = actionUnassigned

func PackFinal(nextState, action uint8, payload uint32) uint32 {
	return packFinal(nextState, action, payload)
}

// SetStateTableEntry overwrites a single state-table slot on t's root state,
// matching the direct stateTable[idx] assignment the internal ext_test.go
// cases used before they moved to the external test package.
func (t *Table) SetStateTableEntry(idx int, packed uint32) {
	t.stateTable[idx] = packed
}
