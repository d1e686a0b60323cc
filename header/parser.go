package header

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/archiveengine/tarcore/block"
	"github.com/archiveengine/tarcore/numeric"
	"github.com/archiveengine/tarcore/pax"
	"github.com/archiveengine/tarcore/sparse"
)

// longLinkName is the sentinel name GNU tar writes on an auxiliary
// TypeGNULongName/TypeGNULongLink record.
const longLinkName = "././@LongLink"

// Parser walks a block stream and assembles Logical Entries, absorbing
// auxiliary records (long name/link, pax extended headers, old-GNU
// sparse) into the following main record. Next returns, alongside the
// Header, a bounded io.Reader positioned at the entry's data body; the
// caller must fully drain or discard it (via Next's own bookkeeping)
// before requesting the following entry. In Lenient mode a malformed
// header resynchronizes onto the next block instead of failing Next
// outright.
type Parser struct {
	br      *block.Reader
	num     numeric.Parser
	Lenient bool

	// PAXDeletes, when set, drops any decoded pax record whose key
	// matches a configured glob pattern before it is applied to the
	// Header.
	PAXDeletes *pax.DeletePolicy

	curReader *entryReader

	// globalRecords accumulates the most recent pax global
	// extended-header ('g') record table, which applies to every
	// following main record until a later global header overrides it.
	globalRecords map[string]string
}

// NewParser returns a Parser reading 512-byte blocks from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{br: block.NewReader(r)}
}

// entryReader streams an entry's data body directly off the block
// stream, then its block-alignment padding, so the Parser never holds
// an entire payload in memory.
type entryReader struct {
	br        *block.Reader
	remaining int64
	padding   int64
	buf       block.Block
	bufOff    int
	bufLen    int
}

func (e *entryReader) Read(p []byte) (int, error) {
	if e.remaining <= 0 {
		return 0, io.EOF
	}
	if e.bufOff >= e.bufLen {
		if err := e.br.NextBlock(&e.buf); err != nil {
			return 0, err
		}
		e.bufOff, e.bufLen = 0, block.Size
	}
	n := e.bufLen - e.bufOff
	if int64(n) > e.remaining {
		n = int(e.remaining)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, e.buf[e.bufOff:e.bufOff+n])
	e.bufOff += n
	e.remaining -= int64(n)
	return n, nil
}

// drain discards whatever data and padding remain unread.
func (e *entryReader) drain() error {
	total := e.remaining + e.padding - int64(e.bufLen-e.bufOff)
	e.remaining, e.padding = 0, 0
	for total > 0 {
		var blk block.Block
		if err := e.br.NextBlock(&blk); err != nil {
			return err
		}
		total -= block.Size
	}
	return nil
}

// Next returns the next Logical Entry and a reader positioned at its
// data body, or io.EOF once the archive's two-zero-block terminator (or
// end of stream, in lenient mode) is reached.
func (p *Parser) Next() (*Header, io.Reader, error) {
	if p.curReader != nil {
		if err := p.curReader.drain(); err != nil {
			return nil, nil, err
		}
		p.curReader = nil
	}

	var (
		longName, longLink string
		haveLongName       bool
		haveLongLink       bool
		paxRecords         map[string]string
	)

	for {
		var blk block.Block
		err := p.br.NextBlock(&blk)
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			if p.Lenient {
				return nil, nil, io.EOF
			}
			return nil, nil, fmt.Errorf("%w: truncated archive", ErrHeader)
		}
		if err != nil {
			return nil, nil, err
		}

		if blk.IsZero() {
			var blk2 block.Block
			err := p.br.NextBlock(&blk2)
			if err != nil || blk2.IsZero() {
				return nil, nil, io.EOF
			}
			if p.Lenient {
				continue
			}
			return nil, nil, fmt.Errorf("%w: unexpected non-zero block after zero block", ErrHeader)
		}

		format := getFormat(&blk)
		if format == FormatUnknown {
			if p.Lenient {
				continue
			}
			return nil, nil, fmt.Errorf("%w: invalid checksum", ErrHeader)
		}

		hdr, size, err := p.parseMainFields(&blk, format)
		if err != nil {
			if p.Lenient {
				continue
			}
			return nil, nil, err
		}

		switch hdr.Typeflag {
		case TypeGNULongName, TypeGNULongLink:
			data, err := p.readAuxiliaryData(size)
			if err != nil {
				return nil, nil, err
			}
			name := strings.TrimRight(string(data), "\x00")
			if hdr.Typeflag == TypeGNULongName {
				longName, haveLongName = name, true
			} else {
				longLink, haveLongLink = name, true
			}
			continue

		case TypeXHeader:
			data, err := p.readAuxiliaryData(size)
			if err != nil {
				return nil, nil, err
			}
			records, err := pax.Decode(bytes.NewReader(data))
			if err != nil {
				if p.Lenient {
					continue
				}
				return nil, nil, err
			}
			if p.PAXDeletes != nil {
				(&pax.OverridePolicy{}).Apply(records, p.PAXDeletes, false)
			}
			if paxRecords == nil {
				paxRecords = map[string]string{}
			}
			for k, v := range records {
				paxRecords[k] = v
			}
			continue

		case TypeXGlobalHeader:
			data, err := p.readAuxiliaryData(size)
			if err != nil {
				return nil, nil, err
			}
			records, err := pax.Decode(bytes.NewReader(data))
			if err != nil {
				if p.Lenient {
					continue
				}
				return nil, nil, err
			}
			if p.PAXDeletes != nil {
				(&pax.OverridePolicy{}).Apply(records, p.PAXDeletes, false)
			}
			if p.globalRecords == nil {
				p.globalRecords = map[string]string{}
			}
			for k, v := range records {
				p.globalRecords[k] = v
			}
			continue
		}

		// Main record: apply accumulated auxiliary state.
		if haveLongName {
			hdr.Name = longName
		}
		if haveLongLink {
			hdr.Linkname = longLink
		}

		if len(p.globalRecords) > 0 {
			merged := make(map[string]string, len(p.globalRecords)+len(paxRecords))
			for k, v := range p.globalRecords {
				merged[k] = v
			}
			for k, v := range paxRecords {
				merged[k] = v
			}
			paxRecords = merged
		}

		var sparseEntries []SparseEntry
		var sparseReal int64
		haveSparse := false

		if format.Has(FormatGNU) {
			entries, err := p.readOldGNUInlineSparse(&blk)
			if err != nil {
				return nil, nil, err
			}
			if entries != nil {
				sparseEntries = toHeaderEntries(entries)
				sparseReal = p.num.ParseNumeric(toGNU(&blk).realSize())
				haveSparse = true
			}
		}

		if paxRecords != nil {
			p.applyPAXRecords(hdr, paxRecords)
			hdr.PAXRecords = paxRecords
			hdr.Format.MayBe(FormatPAX)

			if _, ok := paxRecords[pax.GNUSparseMajor]; ok {
				// 1.0-style: the sparse map is a prefix of the data body.
				er := &entryReader{br: p.br, remaining: size}
				br := bufio.NewReader(er)
				entries, consumed, err := sparse.ReadGNUSparseMap1x0(br)
				if err != nil {
					return nil, nil, err
				}
				sparseEntries = toHeaderEntries(entries)
				haveSparse = true
				if rs, ok := paxRecords[pax.GNUSparseRealSize]; ok {
					sparseReal, _ = strconv.ParseInt(rs, 10, 64)
				}
				_ = consumed
				size = er.remaining
				rest := make([]byte, br.Buffered())
				io.ReadFull(br, rest)
				hdr.Size = size
				p.curReader = &entryReader{br: p.br, remaining: size, padding: block.Padding(hdr.RealSizeOrSize())}
				p.prependPushback(rest)
			} else if m, ok := paxRecords[pax.GNUSparseMap]; ok {
				entries, err := sparse.ReadGNUSparseMap0x1(m)
				if err != nil {
					return nil, nil, err
				}
				sparseEntries = toHeaderEntries(entries)
				haveSparse = true
				if rs, ok := paxRecords[pax.GNUSparseRealSize]; ok {
					sparseReal, _ = strconv.ParseInt(rs, 10, 64)
				} else if rs, ok := paxRecords[pax.GNUSparseSize]; ok {
					// GNU.sparse.size carries the reconstructed file
					// length in the size/numblocks/offset/numbytes
					// record layout, which Decode folds into
					// GNU.sparse.map alongside this branch's other input.
					sparseReal, _ = strconv.ParseInt(rs, 10, 64)
				}
			}
		}

		if haveSparse {
			hdr.SparseMap = sparseEntries
			if sparseReal > 0 {
				hdr.RealSize = sparseReal
			}
		}

		hdr.Format.MayBe(format)
		if p.curReader == nil {
			p.curReader = &entryReader{br: p.br, remaining: size, padding: block.Padding(size)}
		}
		return hdr, p.curReader, nil
	}
}

// RealSizeOrSize returns RealSize when set, else Size; used while the
// 1.0-style sparse map is still being peeled off the data body, before
// RealSize has been assigned from the GNU.sparse.realsize record.
func (h *Header) RealSizeOrSize() int64 {
	if h.RealSize > 0 {
		return h.RealSize
	}
	return h.Size
}

// prependPushback hands back bytes that bufio.Reader buffered past the
// sparse map's own end; those bytes are part of the real payload and
// must not be dropped, so they are placed in curReader's block buffer
// and served before the next block. bufio fills from entryReader one
// block at a time, so rest never exceeds a block; a map padded to a
// block boundary, as EncodeGNUSparseMap1x0 writes it, leaves rest empty.
func (p *Parser) prependPushback(rest []byte) {
	if len(rest) == 0 {
		return
	}
	e := p.curReader
	e.bufOff, e.bufLen = block.Size-len(rest), block.Size
	copy(e.buf[e.bufOff:], rest)
	e.remaining += int64(len(rest))
}

type concatReader struct {
	head []byte
	tail io.Reader
}

func (c *concatReader) Read(p []byte) (int, error) {
	if len(c.head) > 0 {
		n := copy(p, c.head)
		c.head = c.head[n:]
		return n, nil
	}
	return c.tail.Read(p)
}

// parseMainFields decodes every field common to v7/ustar/gnu/star from
// blk into a fresh Header: v7 fields first, then USTAR/GNU/STAR fields
// depending on format.
func (p *Parser) parseMainFields(blk *block.Block, format Format) (*Header, int64, error) {
	v := toV7(blk)
	hdr := &Header{Format: format}

	name := p.num.ParseString(v.name())
	hdr.Typeflag = v.typeFlag()[0]
	hdr.Mode = p.num.ParseNumeric(v.mode())
	hdr.Uid = int(p.num.ParseNumeric(v.uid()))
	hdr.Gid = int(p.num.ParseNumeric(v.gid()))
	size := p.num.ParseNumeric(v.size())
	hdr.ModTime = p.num.ParseNumeric(v.modTime())
	hdr.Linkname = p.num.ParseString(v.linkName())

	switch {
	case format.Has(FormatUSTAR | FormatPAX):
		u := toUSTAR(blk)
		hdr.Uname = p.num.ParseString(u.userName())
		hdr.Gname = p.num.ParseString(u.groupName())
		hdr.Devmajor = p.num.ParseNumeric(u.devMajor())
		hdr.Devminor = p.num.ParseNumeric(u.devMinor())
		if prefix := p.num.ParseString(u.prefix()); prefix != "" {
			name = prefix + "/" + name
		}
	case format.Has(FormatGNU):
		g := toGNU(blk)
		hdr.Uname = p.num.ParseString(g.userName())
		hdr.Gname = p.num.ParseString(g.groupName())
		hdr.Devmajor = p.num.ParseNumeric(g.devMajor())
		hdr.Devminor = p.num.ParseNumeric(g.devMinor())
		if !isAllZeroField(g.accessTime()) {
			hdr.AccessTime = p.num.ParseNumeric(g.accessTime())
		}
		if !isAllZeroField(g.changeTime()) {
			hdr.ChangeTime = p.num.ParseNumeric(g.changeTime())
		}
	case format.Has(FormatSTAR):
		s := toSTAR(blk)
		hdr.Uname = p.num.ParseString(s.userName())
		hdr.Gname = p.num.ParseString(s.groupName())
		hdr.Devmajor = p.num.ParseNumeric(s.devMajor())
		hdr.Devminor = p.num.ParseNumeric(s.devMinor())
		if prefix := p.num.ParseString(s.prefix()); prefix != "" {
			name = prefix + "/" + name
		}
		hdr.AccessTime = p.num.ParseNumeric(s.accessTime())
		hdr.ChangeTime = p.num.ParseNumeric(s.changeTime())
	}

	if p.num.Err != nil {
		err := p.num.Err
		p.num.Err = nil
		return nil, 0, fmt.Errorf("%w: %v", ErrHeader, err)
	}

	if hdr.Typeflag != TypeGNULongName && hdr.Typeflag != TypeGNULongLink {
		hdr.TrailingSlash = strings.HasSuffix(name, "/")
		hdr.Name = strings.TrimSuffix(name, "/")
	}

	if isHeaderOnlyType(hdr.Typeflag) {
		size = 0
	}
	hdr.Size = size
	hdr.RealSize = size
	return hdr, size, nil
}

func isAllZeroField(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// applyPAXRecords overlays pax extended-header records onto hdr, per
// the well-known-key table.
func (p *Parser) applyPAXRecords(hdr *Header, records map[string]string) {
	for k, v := range records {
		switch k {
		case pax.Path:
			hdr.Name = v
		case pax.Linkpath:
			hdr.Linkname = v
		case pax.Uname:
			hdr.Uname = v
		case pax.Gname:
			hdr.Gname = v
		case pax.Size:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				hdr.Size = n
			}
		case pax.Uid:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				hdr.Uid = int(n)
			}
		case pax.Gid:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				hdr.Gid = int(n)
			}
		case pax.Mtime:
			hdr.ModTime, hdr.ModTimeNs = parsePAXTime(v)
		case pax.Atime:
			hdr.AccessTime, hdr.AccessTimeNs = parsePAXTime(v)
		case pax.Ctime:
			hdr.ChangeTime, hdr.ChangeTimeNs = parsePAXTime(v)
		}
	}
}

// parsePAXTime parses a pax "seconds[.fraction]" timestamp value.
func parsePAXTime(v string) (sec, nsec int64) {
	whole, frac, ok := strings.Cut(v, ".")
	sec, _ = strconv.ParseInt(whole, 10, 64)
	if !ok {
		return sec, 0
	}
	for len(frac) < 9 {
		frac += "0"
	}
	nsec, _ = strconv.ParseInt(frac[:9], 10, 64)
	return sec, nsec
}

// readAuxiliaryData reads an auxiliary record's n-byte data body plus
// its block padding, fully consuming both before returning.
func (p *Parser) readAuxiliaryData(n int64) ([]byte, error) {
	buf := make([]byte, 0, n)
	remaining := n
	for remaining > 0 {
		var blk block.Block
		if err := p.br.NextBlock(&blk); err != nil {
			return nil, err
		}
		take := remaining
		if take > block.Size {
			take = block.Size
		}
		buf = append(buf, blk[:take]...)
		remaining -= block.Size
	}
	return buf[:n], nil
}

// readOldGNUInlineSparse decodes an old-GNU header's inline 4-entry
// sparse array, following isExtended-chained extension blocks. It
// returns nil with no error when the array is entirely empty (not a
// sparse file).
func (p *Parser) readOldGNUInlineSparse(blk *block.Block) ([]sparse.Entry, error) {
	arr := toGNU(blk).sparse()
	var inline [][2][]byte
	for i := 0; i < arr.maxEntries(); i++ {
		e := arr.entry(i)
		inline = append(inline, [2][]byte{e.offset(), e.length()})
	}
	isExtended := arr.isExtended()[0] != 0

	entries, err := sparse.ReadOldGNUSparseMap(inline, isExtended, func() ([21][2][]byte, bool, error) {
		var extBlk block.Block
		if err := p.br.NextBlock(&extBlk); err != nil {
			return [21][2][]byte{}, false, err
		}
		var pairs [21][2][]byte
		for i := 0; i < 21; i++ {
			off := 24 * i
			pairs[i] = [2][]byte{extBlk[off:][:12], extBlk[off+12:][:12]}
		}
		return pairs, extBlk[504] != 0, nil
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries, nil
}

func toHeaderEntries(es []sparse.Entry) []SparseEntry {
	out := make([]SparseEntry, len(es))
	for i, e := range es {
		out[i] = SparseEntry{Offset: e.Offset, Length: e.Length}
	}
	return out
}
