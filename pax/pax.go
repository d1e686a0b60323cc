// Package pax implements the POSIX.1-2001 pax extended-header record
// grammar: encoding and decoding of the self-referential
// "LEN SP KEY '=' VALUE NL" record format, independent of any particular
// Header type so that it can be imported by package header without a
// cycle. Encode uses the iterative length-fixpoint algorithm required
// because a record's own encoded length field is part of the value
// being measured.
package pax

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrHeader is returned for a malformed extended-header record.
var ErrHeader = errors.New("pax: malformed extended header")

// Well-known pax extended-header keys.
const (
	Path     = "path"
	Linkpath = "linkpath"
	Size     = "size"
	Uid      = "uid"
	Gid      = "gid"
	Uname    = "uname"
	Gname    = "gname"
	Atime    = "atime"
	Ctime    = "ctime"
	Mtime    = "mtime"
	Comment  = "comment"
	Charset  = "charset"

	GNUSparseSize      = "GNU.sparse.size"
	GNUSparseNumBlocks = "GNU.sparse.numblocks"
	GNUSparseOffset    = "GNU.sparse.offset"
	GNUSparseNumBytes  = "GNU.sparse.numbytes"
	GNUSparseMap       = "GNU.sparse.map"
	GNUSparseName      = "GNU.sparse.name"
	GNUSparseMajor     = "GNU.sparse.major"
	GNUSparseMinor     = "GNU.sparse.minor"
	GNUSparseRealSize  = "GNU.sparse.realsize"

	SchilyXattrPrefix = "SCHILY.xattr."
)

// protectedKeys can never be deleted or overridden by a configured
// pattern: rewriting path or size out from under a header would make
// the archive entry unreadable, and any GNU.sparse.* key must stay
// consistent with the sparse map computed at write time.
var protectedKeys = map[string]bool{
	Path: true, Size: true,
}

func isProtected(key string) bool {
	if protectedKeys[key] {
		return true
	}
	return strings.HasPrefix(key, "GNU.sparse.")
}

// Decode reads a pax extended-header body (the payload of a TypeXHeader
// or TypeXGlobalHeader record) and returns its key/value records.
// GNU sparse 0.0-format offset/numbytes pairs (which predate the PAX
// GNU.sparse.map single-field encoding) are folded into a single
// GNU.sparse.map value.
func Decode(r io.Reader) (map[string]string, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	sbuf := string(buf)

	var sparseMap []string
	records := make(map[string]string)
	for len(sbuf) > 0 {
		key, value, residual, err := decodeRecord(sbuf)
		if err != nil {
			return nil, ErrHeader
		}
		sbuf = residual

		switch key {
		case GNUSparseOffset, GNUSparseNumBytes:
			if (len(sparseMap)%2 == 0 && key != GNUSparseOffset) ||
				(len(sparseMap)%2 == 1 && key != GNUSparseNumBytes) ||
				strings.Contains(value, ",") {
				return nil, ErrHeader
			}
			sparseMap = append(sparseMap, value)
		default:
			records[key] = value
		}
	}
	if len(sparseMap) > 0 {
		records[GNUSparseMap] = strings.Join(sparseMap, ",")
	}
	return records, nil
}

// decodeRecord parses one "LEN SP KEY=VALUE NL" record off the front of
// s and returns the remainder.
func decodeRecord(s string) (key, value, residual string, err error) {
	// LEN is the decimal length of the entire record, including LEN
	// itself and the trailing newline. Find it by re-deriving it: scan
	// the leading digits, then trust that many bytes as the record.
	sp := strings.IndexByte(s, ' ')
	if sp <= 0 {
		return "", "", "", ErrHeader
	}
	length, err := strconv.Atoi(s[:sp])
	if err != nil || length <= sp || length > len(s) {
		return "", "", "", ErrHeader
	}
	rec := s[:length]
	residual = s[length:]
	if rec[length-1] != '\n' {
		return "", "", "", ErrHeader
	}
	kv := rec[sp+1 : length-1]
	eq := strings.IndexByte(kv, '=')
	if eq < 0 {
		return "", "", "", fmt.Errorf("%w: missing equal sign", ErrHeader)
	}
	return kv[:eq], kv[eq+1:], residual, nil
}

// Encode serializes records in a deterministic (sorted-key) order using
// the self-referential length grammar. Each record's LEN is computed by
// iterating the length calculation until it stabilizes, since adding a
// digit to LEN can itself push the record's overall length past a power
// of ten.
func Encode(records map[string]string) []byte {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		encodeRecord(&buf, k, records[k])
	}
	return buf.Bytes()
}

func encodeRecord(buf *bytes.Buffer, key, value string) {
	// "LEN KEY=VALUE\n"; LEN includes its own digits and the space,
	// key, '=', value, and newline.
	fixed := len(key) + len("=") + len(value) + len("\n") + len(" ")
	length := fixed + len(strconv.Itoa(fixed))
	for {
		s := strconv.Itoa(length)
		total := fixed + len(s)
		if total == length {
			break
		}
		length = total
	}
	fmt.Fprintf(buf, "%d %s=%s\n", length, key, value)
}

// AppendRecord writes one self-referential-length record to buf. It is
// exported so callers needing repeated-key records that Encode's
// map-based API cannot represent (GNU.sparse.offset/numbytes pairs, one
// pair per sparse fragment) can assemble a pax body by hand.
func AppendRecord(buf *bytes.Buffer, key, value string) {
	encodeRecord(buf, key, value)
}

// DeletePolicy is a configurable list of glob patterns causing matching
// keys to be dropped during decode and encode. Patterns are matched
// with doublestar glob syntax.
type DeletePolicy struct {
	Patterns []string
}

// OverridePolicy is a configurable list of key=value / key:=value pairs
// causing global (first-pass) or per-entry (last-pass) overrides.
// Protected keys reject a matching pattern at construction time.
type OverridePolicy struct {
	Global  map[string]string // key=value, applied once for the archive
	PerFile map[string]string // key:=value, applied to every entry
}

// NewOverridePolicy validates that no protected key is being
// deleted or overridden.
func NewOverridePolicy(global, perFile map[string]string, deletes []string) (*OverridePolicy, *DeletePolicy, error) {
	for k := range global {
		if isProtected(k) {
			return nil, nil, fmt.Errorf("pax: key %q is protected and cannot be overridden", k)
		}
	}
	for k := range perFile {
		if isProtected(k) {
			return nil, nil, fmt.Errorf("pax: key %q is protected and cannot be overridden", k)
		}
	}
	for _, pat := range deletes {
		for _, k := range []string{Path, Size, GNUSparseSize, GNUSparseNumBlocks, GNUSparseOffset, GNUSparseNumBytes, GNUSparseMap, GNUSparseName, GNUSparseMajor, GNUSparseMinor, GNUSparseRealSize} {
			if globMatch(pat, k) {
				return nil, nil, fmt.Errorf("pax: pattern %q matches protected key %q", pat, k)
			}
		}
	}
	return &OverridePolicy{Global: global, PerFile: perFile}, &DeletePolicy{Patterns: deletes}, nil
}

// Apply runs the delete policy then the override policy over records,
// mutating it in place. o.Global is applied only when global is true
// (first pass); pass false on subsequent calls.
func (o *OverridePolicy) Apply(records map[string]string, d *DeletePolicy, global bool) {
	if d != nil {
		for k := range records {
			for _, pat := range d.Patterns {
				if globMatch(pat, k) {
					delete(records, k)
					break
				}
			}
		}
	}
	if o == nil {
		return
	}
	if global {
		for k, v := range o.Global {
			records[k] = v
		}
	}
	for k, v := range o.PerFile {
		records[k] = v
	}
}
