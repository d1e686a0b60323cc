// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import "github.com/archiveengine/tarcore/block"

// Size constants from the various tar specifications.
const (
	nameSize   = 100
	prefixSize = 155
)

// v7, ustar, oldGNU, and star are typed views over the same 512-byte
// block, one per on-wire layout. Accessor method names are lowercase
// (blk.toV7(), v7.typeFlag(), ustar.prefix(), ...) since these types
// never leave the package.
type v7 block.Block
type ustarLayout block.Block
type oldGNU block.Block
type star block.Block
type sparseArray []byte

func toV7(b *block.Block) *v7          { return (*v7)(b) }
func toUSTAR(b *block.Block) *ustarLayout { return (*ustarLayout)(b) }
func toGNU(b *block.Block) *oldGNU     { return (*oldGNU)(b) }
func toSTAR(b *block.Block) *star      { return (*star)(b) }
func toSparse(b *block.Block) sparseArray { return sparseArray(b[:]) }

func (h *v7) name() []byte     { return h[000:][:100] }
func (h *v7) mode() []byte     { return h[100:][:8] }
func (h *v7) uid() []byte      { return h[108:][:8] }
func (h *v7) gid() []byte      { return h[116:][:8] }
func (h *v7) size() []byte     { return h[124:][:12] }
func (h *v7) modTime() []byte  { return h[136:][:12] }
func (h *v7) chksum() []byte   { return h[148:][:8] }
func (h *v7) typeFlag() []byte { return h[156:][:1] }
func (h *v7) linkName() []byte { return h[157:][:100] }

func (h *ustarLayout) v7() *v7            { return (*v7)(h) }
func (h *ustarLayout) magic() []byte      { return h[257:][:6] }
func (h *ustarLayout) version() []byte    { return h[263:][:2] }
func (h *ustarLayout) userName() []byte   { return h[265:][:32] }
func (h *ustarLayout) groupName() []byte  { return h[297:][:32] }
func (h *ustarLayout) devMajor() []byte   { return h[329:][:8] }
func (h *ustarLayout) devMinor() []byte   { return h[337:][:8] }
func (h *ustarLayout) prefix() []byte     { return h[345:][:155] }

func (h *oldGNU) v7() *v7             { return (*v7)(h) }
func (h *oldGNU) magic() []byte       { return h[257:][:6] }
func (h *oldGNU) version() []byte     { return h[263:][:2] }
func (h *oldGNU) userName() []byte    { return h[265:][:32] }
func (h *oldGNU) groupName() []byte   { return h[297:][:32] }
func (h *oldGNU) devMajor() []byte    { return h[329:][:8] }
func (h *oldGNU) devMinor() []byte    { return h[337:][:8] }
func (h *oldGNU) accessTime() []byte  { return h[345:][:12] }
func (h *oldGNU) changeTime() []byte  { return h[357:][:12] }
func (h *oldGNU) offset() []byte      { return h[369:][:12] }
func (h *oldGNU) longnames() []byte   { return h[381:][:4] }
func (h *oldGNU) sparse() sparseArray { return sparseArray(h[386:][:24*4+1]) }
func (h *oldGNU) isExtended() []byte  { return h[482:][:1] }
func (h *oldGNU) realSize() []byte    { return h[483:][:12] }

func (h *star) v7() *v7           { return (*v7)(h) }
func (h *star) magic() []byte     { return h[257:][:6] }
func (h *star) version() []byte   { return h[263:][:2] }
func (h *star) userName() []byte  { return h[265:][:32] }
func (h *star) groupName() []byte { return h[297:][:32] }
func (h *star) devMajor() []byte  { return h[329:][:8] }
func (h *star) devMinor() []byte  { return h[337:][:8] }
func (h *star) prefix() []byte    { return h[345:][:131] }
func (h *star) accessTime() []byte { return h[476:][:12] }
func (h *star) changeTime() []byte { return h[488:][:12] }
func (h *star) trailer() []byte   { return h[508:][:4] }

func (s sparseArray) entry(i int) sparseElem { return sparseElem(s[i*24:]) }
func (s sparseArray) isExtended() []byte     { return s[24*s.maxEntries():][:1] }
func (s sparseArray) maxEntries() int        { return len(s) / 24 }

type sparseElem []byte

func (s sparseElem) offset() []byte { return s[00:][:12] }
func (s sparseElem) length() []byte { return s[12:][:12] }

// getFormat checks that the block is a valid tar header based on the
// checksum, then guesses the specific format by magic value.
func getFormat(b *block.Block) Format {
	value, err := parseChksumField(toV7(b).chksum())
	unsigned, signed := b.ComputeChecksum()
	if err != nil || (value != unsigned && value != signed) {
		return FormatUnknown
	}

	magic := string(toUSTAR(b).magic())
	version := string(toUSTAR(b).version())
	trailer := string(toSTAR(b).trailer())
	switch {
	case magic == magicUSTAR && trailer == trailerSTAR:
		return FormatSTAR
	case magic == magicUSTAR:
		return FormatUSTAR | FormatPAX
	case magic == magicGNU && version == versionGNU:
		return FormatGNU
	default:
		return FormatV7
	}
}

// setFormat writes the magic values for format and updates the checksum.
func setFormat(b *block.Block, format Format) {
	switch {
	case format.Has(FormatV7):
		// No magic.
	case format.Has(FormatGNU):
		copy(toGNU(b).magic(), magicGNU)
		copy(toGNU(b).version(), versionGNU)
	case format.Has(FormatSTAR):
		copy(toSTAR(b).magic(), magicUSTAR)
		copy(toSTAR(b).version(), versionUSTAR)
		copy(toSTAR(b).trailer(), trailerSTAR)
	case format.Has(FormatUSTAR | FormatPAX):
		copy(toUSTAR(b).magic(), magicUSTAR)
		copy(toUSTAR(b).version(), versionUSTAR)
	default:
		panic("header: invalid format")
	}

	field := toV7(b).chksum()
	chksum, _ := b.ComputeChecksum()
	formatChksumField(field[:6], chksum)
	field[6] = 0
	field[7] = ' '
}

// parseChksumField and formatChksumField handle the checksum field's
// idiosyncratic encoding: six octal digits, then a NUL, then a space --
// not the usual N-1-digits-then-NUL layout every other numeric field
// uses.
func parseChksumField(b []byte) (int64, error) {
	for len(b) > 0 && (b[0] == 0 || b[0] == ' ') {
		b = b[1:]
	}
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	b = b[:end]
	if len(b) == 0 {
		return 0, nil
	}
	var v int64
	for _, c := range b {
		if c < '0' || c > '7' {
			return 0, errChksumFormat
		}
		v = v<<3 | int64(c-'0')
	}
	return v, nil
}

func formatChksumField(field []byte, v int64) {
	for i := len(field) - 1; i >= 0; i-- {
		field[i] = '0' + byte(v&7)
		v >>= 3
	}
}
