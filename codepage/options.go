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

import "strings"

// Options holds the per-converter flags recognized by Open.
type Options struct {
	SwapLFNL    bool
	GB18030     bool
	UseFallback bool
	Extension   Extension
}

// Option configures a Converter at Open time.
type Option func(*Options)

// WithSwapLFNL exchanges the EBCDIC NL/LF byte roles.
func WithSwapLFNL() Option { return func(o *Options) { o.SwapLFNL = true } }

// WithGB18030 enables the GB 18030 algorithmic four-byte ranges.
func WithGB18030() Option { return func(o *Options) { o.GB18030 = true } }

// WithFallback enables or disables fallback (one-way) mappings on both
// sides of the conversion.
func WithFallback(v bool) Option { return func(o *Options) { o.UseFallback = v } }

// WithExtension installs the external extension-table collaborator.
func WithExtension(ext Extension) Option {
	return func(o *Options) { o.Extension = ext }
}

// ParseOptionName recognizes the historical string option names an external
// converter-registry configuration layer passes through; currently only
// "swaplfnl" maps to an Option (GB18030 is keyed off the converter name,
// see gb18030ByName). Unknown names report ok=false.
func ParseOptionName(name string) (Option, bool) {
	switch strings.ToLower(name) {
	case "swaplfnl":
		return WithSwapLFNL(), true
	default:
		return nil, false
	}
}

// gb18030ByName reports whether a converter name implies the GB18030
// option: the name must carry the "18030" digits as part of a gb18030
// spelling in either case.
func gb18030ByName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "18030") && strings.Contains(lower, "gb18030")
}
