// Package sparse implements the sparse-file codecs used across the tar
// family: the old-GNU inline/extension-block encoding, the PAX 0.1 and
// 1.0 GNU.sparse.* encodings, and the payload/extraction copy logic
// shared by both. It depends only on the standard library, so that
// both package header (old-GNU inline maps) and the root tarcore
// package (payload dump/restore) can import it without a cycle.
package sparse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrHeader is returned for a malformed sparse map.
var ErrHeader = errors.New("sparse: malformed sparse map")

// Entry is one fragment of real file data: Length bytes of archived
// payload logically located at Offset in the reconstructed file.
type Entry struct {
	Offset, Length int64
}

func (e Entry) EndOffset() int64 { return e.Offset + e.Length }

// Validate checks a sparse map against failure modes:
// negative offsets, overlapping/unordered entries, or a map exceeding
// realSize.
func Validate(entries []Entry, realSize int64) error {
	if realSize < 0 {
		return fmt.Errorf("%w: negative real size", ErrHeader)
	}
	var last int64
	for _, e := range entries {
		if e.Offset < 0 || e.Length < 0 {
			return fmt.Errorf("%w: negative offset or length", ErrHeader)
		}
		if e.Offset < last {
			return fmt.Errorf("%w: entries out of order or overlapping", ErrHeader)
		}
		if e.EndOffset() > realSize {
			return fmt.Errorf("%w: entry %v exceeds real size %d", ErrHeader, e, realSize)
		}
		last = e.EndOffset()
	}
	return nil
}

// Invert returns the hole runs (the gaps between entries, and the tail
// past the last entry) implied by entries within [0, realSize).
func Invert(entries []Entry, realSize int64) []Entry {
	var holes []Entry
	var pos int64
	for _, e := range entries {
		if e.Offset > pos {
			holes = append(holes, Entry{Offset: pos, Length: e.Offset - pos})
		}
		pos = e.EndOffset()
	}
	if pos < realSize {
		holes = append(holes, Entry{Offset: pos, Length: realSize - pos})
	}
	return holes
}

// Dump scans r (a file opened for reading, realSize bytes long) and
// returns the data-run sparse map describing its non-hole regions, by
// detecting runs of entirely-zero blocks. blockSize matches the
// filesystem's notion of an allocation unit; holes shorter than
// blockSize are not reported as holes.
func Dump(r io.ReaderAt, realSize int64, blockSize int) ([]Entry, error) {
	if blockSize <= 0 {
		blockSize = 512
	}
	var entries []Entry
	buf := make([]byte, blockSize)
	var dataStart int64 = -1
	var pos int64
	for pos < realSize {
		n, err := r.ReadAt(buf, pos)
		if err != nil && err != io.EOF {
			return nil, err
		}
		chunk := buf[:n]
		if int64(n) < int64(blockSize) && pos+int64(n) < realSize {
			// Short read before EOF: treat remainder as data, not a hole.
		}
		if isZero(chunk) && int64(len(chunk)) == int64(blockSize) {
			if dataStart >= 0 {
				entries = append(entries, Entry{Offset: dataStart, Length: pos - dataStart})
				dataStart = -1
			}
		} else {
			if dataStart < 0 {
				dataStart = pos
			}
		}
		pos += int64(n)
		if n == 0 {
			break
		}
	}
	if dataStart >= 0 {
		entries = append(entries, Entry{Offset: dataStart, Length: realSize - dataStart})
	}
	if len(entries) == 0 && realSize > 0 {
		// Dump reports the honest empty map; no caller substitutes the
		// (realSize-1, 1) sentinel entry, whatever
		// PreserveEmptySparseQuirk says.
		return nil, nil
	}
	return entries, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// ReadOldGNUSparseMap decodes the 4 inline (offset,numbytes) pairs of an
// old-GNU header block's sparse field, following isExtended-chained
// 512-byte extension blocks (21 pairs each) read from more until a
// block's isExtended byte is zero.
func ReadOldGNUSparseMap(inline [][2][]byte, isExtended bool, more func() ([21][2][]byte, bool, error)) ([]Entry, error) {
	var entries []Entry
	for _, pair := range inline {
		e, ok, err := decodePair(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	for isExtended {
		pairs, next, err := more()
		if err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			e, ok, err := decodePair(pair[0], pair[1])
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			entries = append(entries, e)
		}
		isExtended = next
	}
	return entries, nil
}

func decodePair(offsetField, lengthField []byte) (Entry, bool, error) {
	if isAllZero(offsetField) && isAllZero(lengthField) {
		return Entry{}, false, nil
	}
	offset, err := parseOctalField(offsetField)
	if err != nil {
		return Entry{}, false, err
	}
	length, err := parseOctalField(lengthField)
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Offset: offset, Length: length}, true, nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func parseOctalField(b []byte) (int64, error) {
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
	return strconv.ParseInt(string(b), 8, 64)
}

// ReadGNUSparseMap1x0 decodes the PAX 1.0 sparse map format, stored as
// the first blocks of the entry's own data body: a decimal entry count,
// then that many "offset\nnumbytes\n" decimal pairs, newline-delimited,
// padded to the next 512-byte boundary.
func ReadGNUSparseMap1x0(r *bufio.Reader) ([]Entry, int64, error) {
	var read int64
	numEntries, err := readDecimalLine(r, &read)
	if err != nil {
		return nil, 0, err
	}
	if numEntries < 0 {
		return nil, 0, ErrHeader
	}
	entries := make([]Entry, 0, numEntries)
	for i := int64(0); i < numEntries; i++ {
		offset, err := readDecimalLine(r, &read)
		if err != nil {
			return nil, 0, err
		}
		length, err := readDecimalLine(r, &read)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, Entry{Offset: offset, Length: length})
	}
	if _, err := r.Discard(int(-read & 511)); err != nil {
		return nil, 0, err
	}
	return entries, numEntries, nil
}

func readDecimalLine(r *bufio.Reader, read *int64) (int64, error) {
	line, err := r.ReadString('\n')
	*read += int64(len(line))
	if err != nil && line == "" {
		return 0, err
	}
	line = strings.TrimSuffix(line, "\n")
	return strconv.ParseInt(line, 10, 64)
}

// ReadGNUSparseMap0x1 decodes the PAX 0.1 sparse map format: a single
// GNU.sparse.map record of comma-separated "offset,numbytes,offset,..."
// decimal values.
func ReadGNUSparseMap0x1(mapField string) ([]Entry, error) {
	if mapField == "" {
		return nil, nil
	}
	parts := strings.Split(mapField, ",")
	if len(parts)%2 != 0 {
		return nil, ErrHeader
	}
	entries := make([]Entry, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		offset, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			return nil, ErrHeader
		}
		length, err := strconv.ParseInt(parts[i+1], 10, 64)
		if err != nil {
			return nil, ErrHeader
		}
		entries = append(entries, Entry{Offset: offset, Length: length})
	}
	return entries, nil
}

// EncodeGNUSparseMap1x0 renders entries in the PAX 1.0 body format,
// including the trailing pad to a 512-byte boundary.
func EncodeGNUSparseMap1x0(entries []Entry) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%d\n%d\n", e.Offset, e.Length)
	}
	b.WriteString(strings.Repeat("\x00", -b.Len()&511))
	return []byte(b.String())
}

// EncodeGNUSparseMap0x1 renders entries as a single comma-joined
// GNU.sparse.map record value.
func EncodeGNUSparseMap0x1(entries []Entry) string {
	var parts []string
	for _, e := range entries {
		parts = append(parts, strconv.FormatInt(e.Offset, 10), strconv.FormatInt(e.Length, 10))
	}
	return strings.Join(parts, ",")
}
