package block

import (
	"bufio"
	"io"

	"github.com/therootcompany/xz"
)

// newXZReader lazily constructs an xz decompressing reader the first
// time bytes are actually pulled through it, so a stream that turns
// out not to be xz-compressed never pays for one.
func newXZReader(r *bufio.Reader) io.Reader {
	return &lazyXZReader{src: r}
}

type lazyXZReader struct {
	src *bufio.Reader
	xr  io.Reader
	err error
}

func (l *lazyXZReader) Read(p []byte) (int, error) {
	if l.xr == nil && l.err == nil {
		l.xr, l.err = xz.NewReader(l.src, xz.DefaultDictMax)
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.xr.Read(p)
}
