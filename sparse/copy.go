package sparse

import (
	"io"
)

// WritePayload streams the archive's data-only view of a sparse file
// (just the data runs in entries, back to back) from src, which must
// yield exactly the sum of entries' Length bytes.
func WritePayload(w io.Writer, src io.Reader) (int64, error) {
	return io.Copy(w, src)
}

// Extract writes entries' data (read sequentially from payload, which
// yields exactly the sum of entries' lengths) into dst at their logical
// offsets, zero-filling the holes between them. dst must support
// seeking, e.g. an *os.File.
func Extract(dst io.WriteSeeker, payload io.Reader, entries []Entry, realSize int64) error {
	var pos int64
	for _, e := range entries {
		if e.Offset > pos {
			if _, err := dst.Seek(e.Offset, io.SeekStart); err != nil {
				return err
			}
		}
		if _, err := io.CopyN(dst, payload, e.Length); err != nil {
			return err
		}
		pos = e.EndOffset()
	}
	if realSize > pos {
		if _, err := dst.Seek(realSize-1, io.SeekStart); err != nil {
			return err
		}
		if _, err := dst.Write([]byte{0}); err != nil {
			return err
		}
	} else if realSize == 0 {
		if _, err := dst.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}
	return nil
}
