// Package sectionreader wraps a plain payload reader to expose a sparse
// file's payload-bearing regions as if they were contiguous, reading
// zeros for the holes in between. It is used by the root tarcore
// package to present a sparse archive entry's reconstructed content as
// a single io.Reader without allocating the whole (potentially
// enormous) real size in memory.
package sectionreader

import (
	"io"

	"github.com/archiveengine/tarcore/sparse"
)

// SparseReader presents the logical (hole-expanded) view of a sparse
// file whose data runs are described by entries and whose payload bytes
// (exactly the sum of entries' lengths, back to back) are available
// from payload.
type SparseReader struct {
	entries []sparse.Entry
	holes   []sparse.Entry
	payload io.Reader
	realSize int64

	pos   int64
	ei    int // next unread index into a merged offset-ordered timeline
	timeline []segment
}

type segment struct {
	sparse.Entry
	isHole bool
}

// NewSparseReader builds a reader over entries (data runs, offset-
// ordered and non-overlapping) and the holes between them up to
// realSize, reading actual bytes from payload for data runs and
// synthesizing zeros for holes.
func NewSparseReader(entries []sparse.Entry, realSize int64, payload io.Reader) *SparseReader {
	holes := sparse.Invert(entries, realSize)
	timeline := make([]segment, 0, len(entries)+len(holes))
	for _, e := range entries {
		timeline = append(timeline, segment{e, false})
	}
	for _, h := range holes {
		timeline = append(timeline, segment{h, true})
	}
	// Stable-sort by offset; both slices are individually ordered and
	// interleave without overlap, so a simple insertion merge suffices.
	for i := 1; i < len(timeline); i++ {
		for j := i; j > 0 && timeline[j].Offset < timeline[j-1].Offset; j-- {
			timeline[j], timeline[j-1] = timeline[j-1], timeline[j]
		}
	}
	return &SparseReader{entries: entries, holes: holes, payload: payload, realSize: realSize, timeline: timeline}
}

func (s *SparseReader) Read(p []byte) (int, error) {
	if s.pos >= s.realSize {
		return 0, io.EOF
	}
	for s.ei < len(s.timeline) && s.timeline[s.ei].EndOffset() <= s.pos {
		s.ei++
	}
	if s.ei >= len(s.timeline) {
		return 0, io.EOF
	}
	seg := s.timeline[s.ei]
	avail := seg.EndOffset() - s.pos
	n := int64(len(p))
	if n > avail {
		n = avail
	}
	if seg.isHole {
		for i := int64(0); i < n; i++ {
			p[i] = 0
		}
		s.pos += n
		return int(n), nil
	}
	read, err := io.ReadFull(s.payload, p[:n])
	s.pos += int64(read)
	return read, err
}
