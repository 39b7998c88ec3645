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

// Command gocnv converts a byte stream between a legacy codepage and UTF-8
// using a precompiled mapping-table blob: ToUnicodeWithOffsets for
// decoding, the direct UTF-8 bridge (falling back to
// FromUnicodeWithOffsets) for encoding, and WriteSub for substitution.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/go-textconv/textconv/codepage"
)

var (
	dashTable          string
	dashDecode         bool
	dashEncode         bool
	dashSwapLFNL       bool
	dashGB18030        bool
	dashFallback       bool
	dashSub            bool
	dashOut            string
	dashListStarters   bool
	dashListUnicodeSet bool
)

func init() {
	flag.StringVar(&dashTable, "table", "", "path to a compiled .cnvtbl mapping-table blob (required)")
	flag.BoolVar(&dashDecode, "d", false, "decode: legacy codepage bytes on stdin to UTF-8 on stdout")
	flag.BoolVar(&dashEncode, "e", false, "encode: UTF-8 on stdin to legacy codepage bytes on stdout")
	flag.BoolVar(&dashSwapLFNL, "swaplfnl", false, "swap EBCDIC LF/NL byte roles")
	flag.BoolVar(&dashGB18030, "gb18030", false, "enable GB 18030 algorithmic four-byte ranges")
	flag.BoolVar(&dashFallback, "fallback", false, "accept one-way fallback mappings in addition to roundtrips")
	flag.BoolVar(&dashSub, "sub", false, "substitute the converter's sub character for unmappable input instead of stopping")
	flag.StringVar(&dashOut, "o", "-", "output file, or - for stdout")
	flag.BoolVar(&dashListStarters, "list-starters", false, "print the table's lead-byte set and exit")
	flag.BoolVar(&dashListUnicodeSet, "list-unicode-set", false, "print the table's reachable Unicode code points and exit")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gocnv:", err)
		os.Exit(1)
	}
}

func run() error {
	if dashTable == "" {
		return errors.New("-table is required")
	}

	blob, err := os.ReadFile(dashTable)
	if err != nil {
		return fmt.Errorf("reading table: %w", err)
	}
	t, err := codepage.LoadTable(dashTable, blob)
	if err != nil {
		return fmt.Errorf("loading table: %w", err)
	}

	var opts []codepage.Option
	if dashSwapLFNL {
		opts = append(opts, codepage.WithSwapLFNL())
	}
	if dashGB18030 {
		opts = append(opts, codepage.WithGB18030())
	}
	opts = append(opts, codepage.WithFallback(dashFallback))
	c := codepage.Open(t, opts...)

	if dashListStarters || dashListUnicodeSet {
		return report(c)
	}

	if dashDecode == dashEncode {
		return errors.New("exactly one of -d or -e is required")
	}

	out := os.Stdout
	if dashOut != "-" {
		f, err := os.Create(dashOut)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()

	if dashDecode {
		return decode(c, os.Stdin, w)
	}
	return encode(c, os.Stdin, w)
}

// report prints the introspection views requested on the command line
// instead of running a conversion, one line per entry so the output can be
// piped into another tool (diffed against a golden list, grepped, etc.).
func report(c *codepage.Converter) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	if dashListStarters {
		for _, b := range c.LeadBytes() {
			fmt.Fprintf(w, "0x%02X\n", b)
		}
	}
	if dashListUnicodeSet {
		which := codepage.RoundtripOnly
		if dashFallback {
			which = codepage.RoundtripAndFallback
		}
		for _, r := range c.GetUnicodeSet(which, codepage.FilterNone) {
			fmt.Fprintf(w, "U+%04X\n", r)
		}
	}
	return nil
}

// decode drives ToUnicodeWithOffsets to completion, converting legacy bytes
// read from r into UTF-8 written to w.
func decode(c *codepage.Converter, r io.Reader, w io.Writer) error {
	const chunk = 4096
	in := make([]byte, 0, chunk)
	units := make([]uint16, chunk)

	// carry holds a high surrogate whose trail unit is still parked in the
	// converter after a BufferOverflow, so the pair is decoded together.
	var carry []uint16
	flushAndEmit := func(flush bool) error {
		for {
			consumed, produced, err := c.ToUnicodeWithOffsets(in, units, nil, flush)
			in = in[consumed:]
			run := append(carry, units[:produced]...)
			carry = nil
			var convErr *codepage.ConvError
			overflow := errors.As(err, &convErr) && convErr.Status == codepage.StatusBufferOverflow
			if n := len(run); overflow && n > 0 && run[n-1] >= 0xD800 && run[n-1] <= 0xDBFF {
				carry = []uint16{run[n-1]}
				run = run[:n-1]
			}
			emitRunes(run, w)
			switch {
			case err == nil:
				return nil
			case errors.As(err, &convErr) && convErr.Status == codepage.StatusBufferOverflow:
				continue // drain more of in with a fresh units buffer
			case errors.As(err, &convErr) && dashSub:
				// the legacy-side WriteSub entry has no meaning on this
				// direction; substitute the standard Unicode replacement
				// character instead (the state machine already advanced
				// consumed past the offending byte(s) before returning).
				var b [utf8.UTFMax]byte
				n := utf8.EncodeRune(b[:], 0xFFFD)
				if _, werr := w.Write(b[:n]); werr != nil {
					return werr
				}
				continue
			default:
				return err
			}
		}
	}

	rd := bufio.NewReader(r)
	readBuf := make([]byte, chunk)
	for {
		n, rerr := rd.Read(readBuf)
		in = append(in, readBuf[:n]...)
		if n > 0 {
			if err := flushAndEmit(false); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return flushAndEmit(true)
		}
		if rerr != nil {
			return rerr
		}
	}
}

// emitRunes re-encodes a run of UTF-16 code units as UTF-8 and writes it to
// w. ToUnicodeWithOffsets splits a surrogate pair across two calls only
// when it reports BufferOverflow; decode holds the high surrogate back in
// that case, so units is always whole runes.
func emitRunes(units []uint16, w io.Writer) {
	var b [utf8.UTFMax]byte
	for _, r := range utf16.Decode(units) {
		n := utf8.EncodeRune(b[:], r)
		w.Write(b[:n])
	}
}

// encode converts UTF-8 read from r into legacy codepage bytes written to
// w. Single- and double-byte tables go through the direct UTF-8 bridge;
// the remaining table shapes take the UTF-16 path.
func encode(c *codepage.Converter, r io.Reader, w io.Writer) error {
	readAll, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	switch c.Table.Type() {
	case codepage.TypeSBCS, codepage.TypeDBCS:
		return encodeBridge(c, readAll, w)
	}
	return encodeUTF16(c, readAll, w)
}

// encodeBridge drives SBCSFromUTF8/DBCSFromUTF8 to completion, decoding
// UTF-8 and emitting codepage bytes in one pass without a UTF-16
// intermediate.
func encodeBridge(c *codepage.Converter, in []byte, w io.Writer) error {
	const chunk = 4096
	out := make([]byte, chunk)
	bridge := c.SBCSFromUTF8
	if c.Table.Type() == codepage.TypeDBCS {
		bridge = c.DBCSFromUTF8
	}

	for {
		consumed, produced, cerr := bridge(in, out, true)
		if produced > 0 {
			if _, werr := w.Write(out[:produced]); werr != nil {
				return werr
			}
		}
		in = in[consumed:]
		var convErr *codepage.ConvError
		switch {
		case cerr == nil:
			if len(in) == 0 {
				return nil
			}
		case errors.As(cerr, &convErr) && convErr.Status == codepage.StatusBufferOverflow:
			continue
		case errors.As(cerr, &convErr) && dashSub:
			// the bridge already advanced consumed past the offending
			// input before returning.
			di, _ := c.WriteSub(convErr.Rune, out, 0, nil, 0)
			if _, werr := w.Write(out[:di]); werr != nil {
				return werr
			}
			if len(in) == 0 {
				return nil
			}
		default:
			return cerr
		}
	}
}

// encodeUTF16 drives FromUnicodeWithOffsets to completion for the table
// shapes the bridge does not cover.
func encodeUTF16(c *codepage.Converter, readAll []byte, w io.Writer) error {
	const chunk = 4096
	out := make([]byte, chunk)

	if !utf8.Valid(readAll) {
		return errors.New("input is not valid UTF-8")
	}
	units := utf16.Encode([]rune(string(readAll)))

	for {
		consumed, produced, cerr := c.FromUnicodeWithOffsets(units, out, nil, true)
		if produced > 0 {
			if _, werr := w.Write(out[:produced]); werr != nil {
				return werr
			}
		}
		units = units[consumed:]
		var convErr *codepage.ConvError
		switch {
		case cerr == nil:
			return nil
		case errors.As(cerr, &convErr) && convErr.Status == codepage.StatusBufferOverflow:
			continue
		case errors.As(cerr, &convErr) && dashSub:
			// consumed (above) already advanced units past the offending
			// code point before this branch runs.
			di, _ := c.WriteSub(convErr.Rune, out, 0, nil, 0)
			if _, werr := w.Write(out[:di]); werr != nil {
				return werr
			}
			if len(units) == 0 {
				return nil
			}
		default:
			return cerr
		}
	}
}
