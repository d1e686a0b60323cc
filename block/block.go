// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block implements the fixed-size block framing that underlies
// every tar-family archive: the 512-byte Block, its checksum discipline,
// and the record-boundary padding rules. It does not interpret the
// contents of a block; that is the job of package header.
package block

// Size is the size in bytes of every block in an archive stream.
const Size = 512

// RecordBlocks is the default blocking factor: the number of blocks that
// make up one physical I/O record. GNU tar calls this R.
const RecordBlocks = 20

// Block is a single fixed-size unit of the archive stream.
type Block [Size]byte

// Zero is the all-zero block used to detect the archive terminator.
var Zero Block

// IsZero reports whether b is entirely NUL bytes.
func (b *Block) IsZero() bool {
	return *b == Zero
}

// Reset clears the block to all zeros.
func (b *Block) Reset() {
	*b = Block{}
}

// Padding computes the number of bytes needed to pad offset up to the
// nearest block edge, where 0 <= n < Size.
func Padding(offset int64) (n int64) {
	return -offset & (Size - 1)
}

// RecordPadding computes the number of whole blocks needed to pad a
// stream that has emitted blockCount blocks up to the next record
// boundary of recordBlocks blocks (recordBlocks defaults to
// RecordBlocks when <= 0).
func RecordPadding(blockCount int64, recordBlocks int) int64 {
	if recordBlocks <= 0 {
		recordBlocks = RecordBlocks
	}
	r := int64(recordBlocks)
	return (r - blockCount%r) % r
}

// chksumOffset and chksumLen locate the checksum field common to every
// tar header layout; it is the one field every format places at the same
// offset.
const (
	chksumOffset = 148
	chksumLen    = 8
)

// ComputeChecksum computes the checksum for a header block. POSIX
// specifies a sum of the unsigned byte values with the checksum field
// itself treated as eight ASCII spaces; some historical (Sun) tar
// implementations summed signed bytes instead. Both are returned so a
// caller can accept either.
func (b *Block) ComputeChecksum() (unsigned, signed int64) {
	for i, c := range b {
		if chksumOffset <= i && i < chksumOffset+chksumLen {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

// ChecksumField returns the bytes of the block's checksum field.
func (b *Block) ChecksumField() []byte {
	return b[chksumOffset:][:chksumLen]
}
