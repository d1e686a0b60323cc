package block

import (
	"bufio"
	"io"
)

// Reader frames an underlying byte stream into Blocks. It reports end
// of the underlying transport but never interprets the bytes it
// returns as a header or as a terminator. Zero blocks and the
// two-zero-block terminator are a header.Parser concern.
type Reader struct {
	r   io.Reader
	off int64
}

// NewReader wraps r for block-at-a-time reading. If the stream begins
// with an xz magic header, it is transparently decompressed first,
// while actual subprocess spawning (the gzip/bzip2/compress "-z"
// family) stays out of this package's scope entirely.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: maybeDecompress(r)}
}

// Offset returns the number of bytes consumed from the stream so far.
func (r *Reader) Offset() int64 { return r.off }

// NextBlock reads and returns the next raw block. io.EOF is returned
// only when the underlying stream ends exactly on a block boundary;
// a short final block is reported as io.ErrUnexpectedEOF, since a
// well-formed archive is always a whole number of blocks.
func (r *Reader) NextBlock(b *Block) error {
	n, err := io.ReadFull(r.r, b[:])
	r.off += int64(n)
	if n == 0 && err == io.EOF {
		return io.EOF
	}
	if err == io.ErrUnexpectedEOF || (err == io.EOF && n > 0) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// maybeDecompress peeks the stream's magic and, if it recognizes an xz
// stream, wraps r in an xz decompressor. Any other content (including a
// plain tar stream) passes through untouched.
func maybeDecompress(r io.Reader) io.Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, Size)
	}
	magic, err := br.Peek(6)
	if err != nil || !isXZMagic(magic) {
		return br
	}
	return newXZReader(br)
}

var xzMagic = [6]byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

func isXZMagic(b []byte) bool {
	if len(b) < 6 {
		return false
	}
	return [6]byte(b[:6]) == xzMagic
}
