// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import "strings"

// Format represents the tar archive format, as a bitmask so that a
// block compatible with more than one format (USTAR is also valid PAX)
// can report both.
type Format int

const (
	_ Format = (1 << iota) / 4 // 0, 0, 1, 2, 4, 8, ...

	// FormatUnknown indicates that the format could not be determined,
	// usually because the checksum did not validate.
	FormatUnknown

	// FormatV7 is the original Unix V7 tar format: no magic, no owner
	// names, no device numbers, 100-byte names only.
	FormatV7

	// FormatUSTAR is POSIX.1-1988 USTAR.
	FormatUSTAR

	// FormatPAX is POSIX.1-2001 pax, an extension of USTAR using 'x'/'g'
	// extended-header records to escape USTAR's field-size limits.
	FormatPAX

	// FormatGNU is the GNU tar format: incompatible magic, its own long
	// name/long link escape, its own sparse-file representation, and
	// 89-bit-ish numeric fields via base-256.
	FormatGNU

	// FormatSTAR is Schily's star format.
	FormatSTAR

	formatMax
)

func (f Format) Has(f2 Format) bool    { return f&f2 != 0 }
func (f *Format) MayBe(f2 Format)      { *f |= f2 }
func (f *Format) MayOnlyBe(f2 Format)  { *f &= f2 }
func (f *Format) MustNotBe(f2 Format)  { *f &^= f2 }

var formatNames = map[Format]string{
	FormatV7: "V7", FormatUSTAR: "USTAR", FormatPAX: "PAX", FormatGNU: "GNU", FormatSTAR: "STAR",
}

func (f Format) String() string {
	var ss []string
	for f2 := Format(1); f2 < formatMax; f2 <<= 1 {
		if f.Has(f2) {
			ss = append(ss, formatNames[f2])
		}
	}
	switch len(ss) {
	case 0:
		return "<unknown>"
	case 1:
		return ss[0]
	default:
		return "(" + strings.Join(ss, " | ") + ")"
	}
}

// Magic strings used to identify formats on the wire.
const (
	magicGNU, versionGNU     = "ustar ", " \x00"
	magicUSTAR, versionUSTAR = "ustar\x00", "00"
	trailerSTAR              = "tar\x00"
)
