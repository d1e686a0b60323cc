package header

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/archiveengine/tarcore/block"
	"github.com/archiveengine/tarcore/numeric"
	"github.com/archiveengine/tarcore/pax"
)

// DefaultPAXHeaderName and DefaultPAXGlobalHeaderName are the templates
// Builder uses when PAXHeaderName/PAXGlobalHeaderName are left unset,
// matching GNU tar's own defaults: a fixed sentinel name for per-entry
// extended headers, and a per-process/per-sequence name for global
// ones.
const (
	DefaultPAXHeaderName       = "././@PaxHeader"
	DefaultPAXGlobalHeaderName = "$TMPDIR/GlobalHead.%p.%n"
)

// Builder serializes Header values to a block stream, escalating
// through the numeric/name cascade as each field demands: octal, then
// GNU base-256, then a pax extended-header record, in that order.
type Builder struct {
	bw  *block.Writer
	num numeric.Formatter

	// PreferredFormat constrains which format the cascade may escalate
	// into; FormatUnknown lets the Builder pick USTAR, escalating to
	// PAX or GNU only as individual fields demand it.
	PreferredFormat Format

	// PAXOverrides and PAXDeletes, when set, are applied to every
	// entry's computed pax record table before it is written.
	PAXOverrides *pax.OverridePolicy
	PAXDeletes   *pax.DeletePolicy
	wroteGlobal  bool

	// PAXHeaderName and PAXGlobalHeaderName are naming templates for
	// auxiliary pax extended-header records, expanded by
	// expandPAXNameTemplate: %d is the entry's directory, %f its
	// basename, %p the process id, %n a per-archive global-header
	// sequence number, and %% a literal percent. A leading $TMPDIR is
	// replaced with the TMPDIR environment variable or os.TempDir().
	// Empty fields fall back to DefaultPAXHeaderName/
	// DefaultPAXGlobalHeaderName.
	PAXHeaderName       string
	PAXGlobalHeaderName string
	globalSeq           int
}

// NewBuilder returns a Builder writing 512-byte blocks to w in records
// of recordBlocks blocks.
func NewBuilder(w io.Writer, recordBlocks int) *Builder {
	return &Builder{bw: block.NewWriter(w, recordBlocks)}
}

// WriteHeader emits hdr's main record, plus whatever auxiliary L/K and
// x records the cascade requires. The caller must then write exactly
// hdr.Size bytes of payload (or the sparse data-run total, if
// hdr.SparseMap is set) via Write, which WriteHeader does not itself
// perform.
func (b *Builder) WriteHeader(hdr *Header) error {
	paxRecords := map[string]string{}
	format := b.PreferredFormat
	if format == FormatUnknown {
		format = FormatUSTAR | FormatPAX
	}

	name := hdr.Name
	if hdr.TrailingSlash && !strings.HasSuffix(name, "/") {
		name += "/"
	}

	if len(name) > nameSize+prefixSize || !splitsUSTAR(name) {
		if format.Has(FormatGNU) {
			if err := b.writeAux(TypeGNULongName, name); err != nil {
				return err
			}
		} else {
			paxRecords[pax.Path] = name
		}
	}
	if len(hdr.Linkname) > nameSize {
		if format.Has(FormatGNU) {
			if err := b.writeAux(TypeGNULongLink, hdr.Linkname); err != nil {
				return err
			}
		} else {
			paxRecords[pax.Linkpath] = hdr.Linkname
		}
	}

	// sparseExtra carries the repeated GNU.sparse.offset/numbytes
	// records a POSIX (non-old-GNU) sparse file needs; pax.Encode's
	// map-based API can only hold one value per key, so these are
	// appended to the encoded body by hand, in order, after it.
	var sparseExtra []byte
	if hdr.SparseMap != nil && format.Has(FormatGNU) {
		// old-GNU sparse: the first four entries are written inline in
		// the main record, the rest in extension blocks right after it.
	} else if hdr.SparseMap != nil {
		paxRecords[pax.GNUSparseSize] = strconv.FormatInt(hdr.RealSize, 10)
		paxRecords[pax.GNUSparseNumBlocks] = strconv.Itoa(len(hdr.SparseMap))
		var buf bytes.Buffer
		for _, e := range hdr.SparseMap {
			pax.AppendRecord(&buf, pax.GNUSparseOffset, strconv.FormatInt(e.Offset, 10))
			pax.AppendRecord(&buf, pax.GNUSparseNumBytes, strconv.FormatInt(e.Length, 10))
		}
		sparseExtra = buf.Bytes()
	}

	var blk block.Block
	size, err := b.fillMainFields(&blk, hdr, format, name, paxRecords)
	if err != nil {
		return err
	}

	if b.PAXOverrides != nil || b.PAXDeletes != nil {
		b.PAXOverrides.Apply(paxRecords, b.PAXDeletes, !b.wroteGlobal)
		b.wroteGlobal = true
	}

	if len(paxRecords) > 0 || len(sparseExtra) > 0 {
		if err := b.writePAX(TypeXHeader, b.paxHeaderName(hdr.Name), paxRecords, sparseExtra); err != nil {
			return err
		}
	}

	setFormat(&blk, format)
	if err := b.bw.WriteBlock(&blk); err != nil {
		return err
	}

	// Old-GNU sparse entries past the inline slots go in 21-entry
	// extension blocks, each flagging whether another one follows.
	var num numeric.Formatter
	for i := toGNU(&blk).sparse().maxEntries(); hdr.SparseMap != nil && format.Has(FormatGNU) && i < len(hdr.SparseMap); {
		var ext block.Block
		arr := sparseArray(ext[:21*24+1])
		for j := 0; j < arr.maxEntries() && i < len(hdr.SparseMap); i, j = i+1, j+1 {
			num.FormatNumeric(arr.entry(j).offset(), hdr.SparseMap[i].Offset, numeric.CascadeOctalOnly)
			num.FormatNumeric(arr.entry(j).length(), hdr.SparseMap[i].Length, numeric.CascadeOctalOnly)
		}
		if i < len(hdr.SparseMap) {
			arr.isExtended()[0] = 1
		}
		if err := b.bw.WriteBlock(&ext); err != nil {
			return err
		}
	}

	_ = size
	return nil
}

// WriteGlobalHeader emits a pax global extended-header record
// (typeflag 'g') carrying records that every following entry inherits
// until the next global header overrides them. Its name is derived
// from PAXGlobalHeaderName (or DefaultPAXGlobalHeaderName), with %n
// set to a sequence number that increments on each call.
func (b *Builder) WriteGlobalHeader(records map[string]string) error {
	b.globalSeq++
	tmpl := b.PAXGlobalHeaderName
	if tmpl == "" {
		tmpl = DefaultPAXGlobalHeaderName
	}
	name := expandPAXNameTemplate(tmpl, "", "", os.Getpid(), b.globalSeq)
	return b.writePAX(TypeXGlobalHeader, name, records, nil)
}

// fillMainFields writes every main-record field, escalating numeric
// fields through the cascade and falling back to a pax record when even
// base-256 cannot represent a value.
func (b *Builder) fillMainFields(blk *block.Block, hdr *Header, format Format, name string, paxRecords map[string]string) (int64, error) {
	v := toV7(blk)

	ustarName, prefix := splitUSTARName(name)
	copy(v.name(), ustarName)

	b.num.FormatNumeric(v.mode(), hdr.Mode, numeric.CascadeOctalOnly)
	if !b.num.FormatNumeric(v.uid(), int64(hdr.Uid), numeric.CascadeBase256) {
		paxRecords[pax.Uid] = strconv.FormatInt(int64(hdr.Uid), 10)
		b.num.FormatNumeric(v.uid(), numeric.NobodySubstitute(), numeric.CascadeBase256)
	}
	if !b.num.FormatNumeric(v.gid(), int64(hdr.Gid), numeric.CascadeBase256) {
		paxRecords[pax.Gid] = strconv.FormatInt(int64(hdr.Gid), 10)
		b.num.FormatNumeric(v.gid(), numeric.NobodySubstitute(), numeric.CascadeBase256)
	}

	size := hdr.Size
	if hdr.SparseMap != nil {
		size = sumSparseLengths(hdr.SparseMap)
	}
	if !b.num.FormatNumeric(v.size(), size, numeric.CascadeBase256) {
		paxRecords[pax.Size] = strconv.FormatInt(size, 10)
	}

	if !b.num.FormatNumeric(v.modTime(), hdr.ModTime, numeric.CascadeBase256) {
		paxRecords[pax.Mtime] = formatPAXTime(hdr.ModTime, hdr.ModTimeNs)
	} else if hdr.ModTimeNs != 0 {
		paxRecords[pax.Mtime] = formatPAXTime(hdr.ModTime, hdr.ModTimeNs)
	}

	v.typeFlag()[0] = hdr.Typeflag
	copy(v.linkName(), hdr.Linkname)
	if len(hdr.Linkname) > nameSize {
		v.linkName()[0] = 0 // full name carried by the K record or pax linkpath
	}

	switch {
	case format.Has(FormatUSTAR | FormatPAX):
		u := toUSTAR(blk)
		copy(u.userName(), hdr.Uname)
		copy(u.groupName(), hdr.Gname)
		b.num.FormatNumeric(u.devMajor(), hdr.Devmajor, numeric.CascadeOctalOnly)
		b.num.FormatNumeric(u.devMinor(), hdr.Devminor, numeric.CascadeOctalOnly)
		copy(u.prefix(), prefix)
	case format.Has(FormatGNU):
		g := toGNU(blk)
		copy(g.userName(), hdr.Uname)
		copy(g.groupName(), hdr.Gname)
		b.num.FormatNumeric(g.devMajor(), hdr.Devmajor, numeric.CascadeOctalOnly)
		b.num.FormatNumeric(g.devMinor(), hdr.Devminor, numeric.CascadeOctalOnly)
		if hdr.AccessTime != 0 {
			b.num.FormatNumeric(g.accessTime(), hdr.AccessTime, numeric.CascadeBase256)
		}
		if hdr.ChangeTime != 0 {
			b.num.FormatNumeric(g.changeTime(), hdr.ChangeTime, numeric.CascadeBase256)
		}
		if hdr.SparseMap != nil {
			writeOldGNUSparseArray(g, hdr.SparseMap)
			b.num.FormatNumeric(g.realSize(), hdr.RealSize, numeric.CascadeBase256)
		}
	}

	if b.num.Err != nil {
		err := b.num.Err
		b.num.Err = nil
		return 0, fmt.Errorf("%w: %v", ErrHeader, err)
	}
	return size, nil
}

func formatPAXTime(sec, nsec int64) string {
	if nsec == 0 {
		return strconv.FormatInt(sec, 10)
	}
	return fmt.Sprintf("%d.%09d", sec, nsec)
}

// splitsUSTAR reports whether name can be represented in USTAR's
// 100-byte name plus 155-byte prefix fields without truncation.
func splitsUSTAR(name string) bool {
	n, p := splitUSTARName(name)
	return len(n) <= nameSize && len(p) <= prefixSize
}

// splitUSTARName divides name at a '/' so that the name component fits
// in 100 bytes, per the USTAR prefix-splitting convention. It returns the whole name unsplit if no such split exists.
func splitUSTARName(name string) (base, prefix string) {
	if len(name) <= nameSize {
		return name, ""
	}
	for i := len(name) - 1; i >= 0 && len(name)-i <= nameSize+1; i-- {
		if name[i] == '/' {
			return name[i+1:], name[:i]
		}
	}
	return name, ""
}

// writeAux emits a GNU long-name/long-link auxiliary record: a main
// header for the sentinel name "././@LongLink" with the real value as
// its data body.
func (b *Builder) writeAux(typeflag byte, value string) error {
	var blk block.Block
	v := toV7(&blk)
	copy(v.name(), longLinkName)
	v.typeFlag()[0] = typeflag
	b.num.FormatNumeric(v.mode(), 0, numeric.CascadeOctalOnly)
	b.num.FormatNumeric(v.size(), int64(len(value)+1), numeric.CascadeOctalOnly)
	setFormat(&blk, FormatGNU)
	if err := b.bw.WriteBlock(&blk); err != nil {
		return err
	}
	return b.writeRaw([]byte(value+"\x00"), int64(len(value)+1))
}

// writePAX emits a pax extended-header auxiliary record (typeflag
// TypeXHeader or TypeXGlobalHeader) carrying records, its own name
// already resolved by the caller. auxName is used verbatim so that
// both per-entry (paxHeaderName) and global (WriteGlobalHeader) naming
// can share this one writer. extra, if non-nil, is raw pre-encoded
// record bytes appended after records' own encoding, for repeated-key
// records the map-based API cannot represent.
func (b *Builder) writePAX(typeflag byte, auxName string, records map[string]string, extra []byte) error {
	body := pax.Encode(records)
	if len(extra) > 0 {
		body = append(body, extra...)
	}

	var blk block.Block
	v := toV7(&blk)
	copy(v.name(), auxName)
	v.typeFlag()[0] = typeflag
	b.num.FormatNumeric(v.mode(), 0644, numeric.CascadeOctalOnly)
	b.num.FormatNumeric(v.size(), int64(len(body)), numeric.CascadeOctalOnly)
	setFormat(&blk, FormatUSTAR|FormatPAX)
	if err := b.bw.WriteBlock(&blk); err != nil {
		return err
	}
	return b.writeRaw(body, int64(len(body)))
}

// paxHeaderName derives a per-entry extended-header record name from
// PAXHeaderName (or DefaultPAXHeaderName), substituting the entry's own
// directory and basename for %d/%f.
func (b *Builder) paxHeaderName(entryName string) string {
	tmpl := b.PAXHeaderName
	if tmpl == "" {
		tmpl = DefaultPAXHeaderName
	}
	dir, file := "", entryName
	if i := strings.LastIndexByte(entryName, '/'); i >= 0 {
		dir, file = entryName[:i], entryName[i+1:]
	}
	return expandPAXNameTemplate(tmpl, dir, file, os.Getpid(), 0)
}

// expandPAXNameTemplate substitutes %d (directory), %f (basename), %p
// (process id), %n (sequence number), and %% (literal percent) into
// tmpl, and replaces a leading $TMPDIR with the TMPDIR environment
// variable or os.TempDir() if unset.
func expandPAXNameTemplate(tmpl, dir, file string, pid, seq int) string {
	if strings.Contains(tmpl, "$TMPDIR") {
		tmpdir := os.Getenv("TMPDIR")
		if tmpdir == "" {
			tmpdir = os.TempDir()
		}
		tmpl = strings.Replace(tmpl, "$TMPDIR", tmpdir, 1)
	}
	var out strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '%' && i+1 < len(tmpl) {
			switch tmpl[i+1] {
			case 'd':
				out.WriteString(dir)
				i++
				continue
			case 'f':
				out.WriteString(file)
				i++
				continue
			case 'p':
				out.WriteString(strconv.Itoa(pid))
				i++
				continue
			case 'n':
				out.WriteString(strconv.Itoa(seq))
				i++
				continue
			case '%':
				out.WriteByte('%')
				i++
				continue
			}
		}
		out.WriteByte(tmpl[i])
	}
	return out.String()
}

func (b *Builder) writeRaw(data []byte, n int64) error {
	var buf bytes.Buffer
	buf.Write(data)
	for i := int64(0); i < block.Padding(n); i++ {
		buf.WriteByte(0)
	}
	for buf.Len() > 0 {
		var blk block.Block
		nn := copy(blk[:], buf.Next(block.Size))
		_ = nn
		if err := b.bw.WriteBlock(&blk); err != nil {
			return err
		}
	}
	return nil
}

// Write streams payload bytes for the most recently written header.
// The caller is responsible for writing exactly the declared size.
// Each call zero-pads its own final partial block, so a body split
// across several calls lands contiguously only when every call but the
// last passes a multiple of block.Size bytes.
func (b *Builder) Write(p []byte) (int, error) {
	var blk block.Block
	n := 0
	for len(p) > 0 {
		k := copy(blk[:], p)
		if err := b.bw.WriteBlock(&blk); err != nil {
			return n, err
		}
		n += k
		p = p[k:]
		blk = block.Zero
	}
	return n, nil
}

// Close finalizes the archive with the required terminator and final
// record padding.
func (b *Builder) Close() error { return b.bw.Close() }

func sumSparseLengths(entries []SparseEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Length
	}
	return total
}

func writeOldGNUSparseArray(g *oldGNU, entries []SparseEntry) {
	arr := g.sparse()
	max := arr.maxEntries()
	var num numeric.Formatter
	for i := 0; i < max && i < len(entries); i++ {
		e := arr.entry(i)
		num.FormatNumeric(e.offset(), entries[i].Offset, numeric.CascadeOctalOnly)
		num.FormatNumeric(e.length(), entries[i].Length, numeric.CascadeOctalOnly)
	}
	if len(entries) > max {
		arr.isExtended()[0] = 1
	}
}
