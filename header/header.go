// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package header implements header construction and parsing for every
// tar-family layout: the Header builder and parser, format detection,
// the long-name/long-link escape, and the header state machine.
package header

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrHeader          = errors.New("tarcore: invalid tar header")
	ErrWriteTooLong    = errors.New("tarcore: write too long")
	ErrFieldTooLong    = errors.New("tarcore: header field too long")
	ErrInsecurePath    = errors.New("tarcore: insecure file path")
	errChksumFormat    = errors.New("tarcore: malformed checksum field")
)

type headerError []string

func (he headerError) Error() string {
	const prefix = "tarcore: cannot encode header"
	var ss []string
	for _, s := range he {
		if s != "" {
			ss = append(ss, s)
		}
	}
	if len(ss) == 0 {
		return prefix
	}
	return fmt.Sprintf("%s: %v", prefix, strings.Join(ss, "; and "))
}

// Type flags for Header.Typeflag.
const (
	TypeReg     = '0'
	TypeRegA    = '\x00'
	TypeLink    = '1'
	TypeSymlink = '2'
	TypeChar    = '3'
	TypeBlock   = '4'
	TypeDir     = '5'
	TypeFifo    = '6'
	TypeCont    = '7'

	TypeXHeader       = 'x'
	TypeXGlobalHeader = 'g'

	TypeGNUSparse   = 'S'
	TypeGNULongName = 'L'
	TypeGNULongLink = 'K'

	// TypeGNUVolume and TypeGNUMultiVolume are recognized on read and
	// treated as regular-file-shaped entries; no warning is emitted and
	// this package does not implement multi-volume splitting.
	TypeGNUVolume      = 'V'
	TypeGNUMultiVolume = 'M'

	// TypeIncrementalDir marks a GNU incremental-dump directory entry
	// whose payload is a dumpdir record.
	TypeIncrementalDir = 'D'

	// TypeRenameList is the legacy 'N' renamed-name list; recognized
	// but not synthesized by this package.
	TypeRenameList = 'N'
)

// isHeaderOnlyType reports whether typeflag never carries a data body
// even if Size is set.
func isHeaderOnlyType(flag byte) bool {
	switch flag {
	case TypeLink, TypeSymlink, TypeChar, TypeBlock, TypeDir, TypeFifo:
		return true
	default:
		return false
	}
}

// isAuxiliary reports whether typeflag marks an auxiliary record that
// must be absorbed into the following main record rather than surfaced
// to the caller directly.
func isAuxiliary(flag byte) bool {
	switch flag {
	case TypeXHeader, TypeXGlobalHeader, TypeGNULongName, TypeGNULongLink:
		return true
	default:
		return false
	}
}

// SparseEntry represents a Length-sized fragment at Offset in a file.
type SparseEntry struct{ Offset, Length int64 }

func (s SparseEntry) EndOffset() int64 { return s.Offset + s.Length }

// Header is the in-memory representation of one Logical Entry: the
// fields of one main header plus whatever any preceding auxiliary
// records contributed.
type Header struct {
	Typeflag byte

	Name     string
	Linkname string

	Size  int64
	Mode  int64
	Uid   int
	Gid   int
	Uname string
	Gname string

	ModTime    int64 // seconds since epoch
	ModTimeNs  int64
	AccessTime int64
	AccessTimeNs int64
	ChangeTime int64
	ChangeTimeNs int64

	Devmajor int64
	Devminor int64

	// TrailingSlash records whether the caller's name had a trailing
	// slash, independent of Typeflag.
	TrailingSlash bool

	// SparseMap, when non-nil, is the ordered (offset, numbytes) data
	// map for a sparse file.
	SparseMap []SparseEntry
	// RealSize is the logical (uncompressed) length of a sparse file;
	// Size is the archive (data-only) length.
	RealSize int64

	// Dumpdir is the raw NUL-separated payload of a TypeIncrementalDir
	// entry.
	Dumpdir []byte

	PAXRecords map[string]string

	// Format is the format the header was read as, or the format
	// requested for writing.
	Format Format
}
