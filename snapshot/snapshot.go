// Package snapshot implements the incremental-snapshot protocol GNU
// tar's --listed-incremental mode uses between backup runs: the text
// snapshot-file grammar, the per-directory new/renamed/changed/
// unchanged decision (with NFS device relaxation), dumpdir record
// encode/decode, and purge-on-extract.
//
// The persistent directory table is a small typed key backed by an LRU
// in front of a persistent store, letting a dump traversal perform
// random-access directory lookups without re-scanning the whole text
// file on every run.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/archiveengine/tarcore/internal/identity"
)

// Version is the snapshot-file format version this package writes.
// Version 0 (no per-entry nanosecond field) is still understood on
// read and silently upgraded to Version 2 on rewrite.
const Version = 2

// Entry is one directory's row in a snapshot file.
type Entry struct {
	Name        string
	MTimeSec    int64
	MTimeNsec   int64
	Dev, Ino    uint64
	NFSRelaxed  bool // the '+' prefix: dev may differ, only ino must match
}

// File is a parsed snapshot file: the timestamp marking when the scan
// that produced it began, and one Entry per directory then known.
type File struct {
	Version      int
	ScanSec      int64
	ScanNsec     int64
	Entries      []Entry
}

// Decode parses a snapshot file in either the legacy version-0 grammar
// (no leading version line, no per-entry nsec field) or a numbered
// version's grammar.
func Decode(r io.Reader) (*File, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	f := &File{}
	if !sc.Scan() {
		return nil, fmt.Errorf("snapshot: empty file")
	}
	first := sc.Text()

	if strings.HasPrefix(first, "GNU tar-") {
		// "GNU tar-<version>-2\n" style header line naming the format
		// version explicitly.
		parts := strings.Split(first, "-")
		if len(parts) >= 1 {
			if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				f.Version = n
			}
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("snapshot: missing timestamp line")
		}
		first = sc.Text()
	}

	sec, nsec, err := parseTimestampLine(first)
	if err != nil {
		return nil, err
	}
	f.ScanSec, f.ScanNsec = sec, nsec

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		e, err := decodeEntryLine(line, f.Version)
		if err != nil {
			return nil, err
		}
		f.Entries = append(f.Entries, e)
	}
	return f, sc.Err()
}

func parseTimestampLine(line string) (sec, nsec int64, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("snapshot: malformed timestamp line %q", line)
	}
	sec, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("snapshot: malformed timestamp line %q: %w", line, err)
	}
	if len(fields) > 1 {
		nsec, _ = strconv.ParseInt(fields[1], 10, 64)
	}
	return sec, nsec, nil
}

// decodeEntryLine parses one "[+]MTIME_SEC MTIME_NSEC DEV INO NAME"
// line. Version 0 omits MTIME_NSEC.
func decodeEntryLine(line string, version int) (Entry, error) {
	var e Entry
	if strings.HasPrefix(line, "+") {
		e.NFSRelaxed = true
		line = line[1:]
	}
	// NAME may contain spaces, so split only the leading numeric fields.
	wantFields := 5
	if version == 0 {
		wantFields = 4
	}
	fields := strings.SplitN(line, " ", wantFields)
	if len(fields) < wantFields {
		return Entry{}, fmt.Errorf("snapshot: malformed entry line %q", line)
	}
	idx := 0
	next := func() (int64, error) {
		v, err := strconv.ParseInt(fields[idx], 10, 64)
		idx++
		return v, err
	}
	var err error
	if e.MTimeSec, err = next(); err != nil {
		return Entry{}, err
	}
	if version != 0 {
		if e.MTimeNsec, err = next(); err != nil {
			return Entry{}, err
		}
	}
	dev, err := next()
	if err != nil {
		return Entry{}, err
	}
	ino, err := next()
	if err != nil {
		return Entry{}, err
	}
	e.Dev, e.Ino = uint64(dev), uint64(ino)
	e.Name = unescapeName(fields[idx])
	return e, nil
}

// escapeName applies the classic C escape grammar to name so it can be
// written as one line of a snapshot file: backslash and any control
// byte, including a literal newline, become a backslash escape so an
// embedded newline is never mistaken for the line's own terminator.
func escapeName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03o`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// unescapeName reverses escapeName.
func unescapeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			if s[i] >= '0' && s[i] <= '7' && i+2 < len(s) {
				if v, err := strconv.ParseUint(s[i:i+3], 8, 8); err == nil {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Encode writes f in the current Version's grammar, upgrading a
// version-0 file silently the first time it is rewritten.
func Encode(w io.Writer, f *File) error {
	if _, err := fmt.Fprintf(w, "GNU tar-%d-2\n", Version); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d %d\n", f.ScanSec, f.ScanNsec); err != nil {
		return err
	}
	entries := append([]Entry(nil), f.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, e := range entries {
		prefix := ""
		if e.NFSRelaxed {
			prefix = "+"
		}
		if _, err := fmt.Fprintf(w, "%s%d %d %d %d %s\n", prefix, e.MTimeSec, e.MTimeNsec, e.Dev, e.Ino, escapeName(e.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Decision is the outcome of comparing a directory's current state
// against its prior snapshot Entry.
type Decision int

const (
	DirNew Decision = iota
	DirUnchanged
	DirChanged
	DirRenamed
)

func (d Decision) String() string {
	switch d {
	case DirNew:
		return "new"
	case DirUnchanged:
		return "unchanged"
	case DirChanged:
		return "changed"
	case DirRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Decide classifies dir against its prior Entry (nil if the directory
// was not previously known): a directory is unchanged only if mtime,
// dev (unless NFS-relaxed), and ino all match; it is renamed if the
// same (dev, ino) identity is found under a different name elsewhere
// in the snapshot; otherwise it is new or changed.
func Decide(prior *Entry, mtimeSec, mtimeNsec int64, id identity.DevIno, nfsRelax bool, byIdentity map[identity.Key]string, name string) Decision {
	if prior == nil {
		if other, ok := byIdentity[identity.KeyOf(id)]; ok && other != name {
			return DirRenamed
		}
		return DirNew
	}
	devMatches := prior.Dev == id.Dev || (nfsRelax && prior.NFSRelaxed)
	if devMatches && prior.Ino == id.Ino && prior.MTimeSec == mtimeSec && prior.MTimeNsec == mtimeNsec {
		return DirUnchanged
	}
	if other, ok := byIdentity[identity.KeyOf(id)]; ok && other != name {
		return DirRenamed
	}
	return DirChanged
}

// ComputeExtractPurge compares a live directory listing against the
// dumpdir records archived for that directory and returns the
// disk-only names, sorted: entries present on disk but no longer named
// by any record, the set an incremental extract must delete so the
// restored tree matches the dump exactly. It only computes the
// decision; performing the removal itself is the caller's concern.
func ComputeExtractPurge(diskNames []string, records []DumpdirRecord) []string {
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.Name] = true
	}
	var purge []string
	for _, n := range diskNames {
		if !known[n] {
			purge = append(purge, n)
		}
	}
	sort.Strings(purge)
	return purge
}
