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

import "testing"

func TestParseOptionName(t *testing.T) {
	opt, ok := ParseOptionName("SwapLFNL")
	if !ok {
		t.Fatal("ParseOptionName(\"SwapLFNL\") reported ok=false")
	}
	var o Options
	opt(&o)
	if !o.SwapLFNL {
		t.Fatal("applying the parsed option did not set SwapLFNL")
	}

	if _, ok := ParseOptionName("not-a-real-option"); ok {
		t.Fatal("ParseOptionName accepted an unknown name")
	}
}

func TestGB18030ByName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"ibm-943_P15A-2003", false},
		{"GB18030", true},
		{"windows-54936-2000", false},
		{"gb18030-non-canonical-name", true},
	}
	for _, c := range cases {
		if got := gb18030ByName(c.name); got != c.want {
			t.Errorf("gb18030ByName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestOpenInfersGB18030FromTableName(t *testing.T) {
	table := buildCP1252Euro()
	table.Name = "GB18030"
	c := Open(table)
	if !c.Options.GB18030 {
		t.Fatal("Open did not infer GB18030 from the table name")
	}
}

func TestWithFallbackToggle(t *testing.T) {
	var o Options
	WithFallback(true)(&o)
	if !o.UseFallback {
		t.Fatal("WithFallback(true) did not set UseFallback")
	}
	WithFallback(false)(&o)
	if o.UseFallback {
		t.Fatal("WithFallback(false) did not clear UseFallback")
	}
}
