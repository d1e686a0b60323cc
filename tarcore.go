// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tarcore is a streaming codec for the tar family of archive
// formats (V7, USTAR, old-GNU, GNU, POSIX pax, STAR): block framing and
// checksum, the numeric field cascade, header construction and
// parsing, the long-name/pax extended-header escapes, the sparse-file
// codec, and the GNU incremental-snapshot protocol. It reads and writes
// a single archive stream; option parsing, multi-volume/compression-
// subprocess/remote-tape I/O, filesystem traversal and permission
// handling, and user/group name caching are external collaborators, not
// this package's concern.
package tarcore

import (
	"io"
	"log/slog"

	"github.com/archiveengine/tarcore/block"
	"github.com/archiveengine/tarcore/header"
	"github.com/archiveengine/tarcore/internal/sectionreader"
	"github.com/archiveengine/tarcore/pax"
	"github.com/archiveengine/tarcore/snapshot"
	"github.com/archiveengine/tarcore/sparse"
)

// Header is re-exported so callers need not import package header
// directly for the common case.
type Header = header.Header

// SparseEntry is re-exported from package header.
type SparseEntry = header.SparseEntry

// Re-exported type flag constants.
const (
	TypeReg            = header.TypeReg
	TypeLink           = header.TypeLink
	TypeSymlink        = header.TypeSymlink
	TypeChar           = header.TypeChar
	TypeBlock          = header.TypeBlock
	TypeDir            = header.TypeDir
	TypeFifo           = header.TypeFifo
	TypeGNUSparse      = header.TypeGNUSparse
	TypeIncrementalDir = header.TypeIncrementalDir
)

// Format is re-exported from package header.
type Format = header.Format

const (
	FormatUnknown = header.FormatUnknown
	FormatV7      = header.FormatV7
	FormatUSTAR   = header.FormatUSTAR
	FormatPAX     = header.FormatPAX
	FormatGNU     = header.FormatGNU
	FormatSTAR    = header.FormatSTAR
)

// Option configures a CodecContext.
type Option func(*CodecContext)

// CodecContext carries every piece of explicit, caller-supplied
// configuration a Reader or Writer needs: preferred write format,
// lenient-mode resynchronization, record blocking factor, pax
// override/delete policy, the snapshot table, and an optional
// structured logger.
type CodecContext struct {
	Format       Format
	RecordBlocks int
	Lenient      bool
	FailFast     bool

	PreserveEmptySparseQuirk bool

	PAXOverrides *pax.OverridePolicy
	PAXDeletes   *pax.DeletePolicy

	// PAXHeaderName and PAXGlobalHeaderName override the %d/%f/%p/%n
	// naming templates for auxiliary pax extended-header records; see
	// header.Builder.PAXHeaderName for the substitution grammar. Left
	// empty, a Writer uses header.DefaultPAXHeaderName and
	// header.DefaultPAXGlobalHeaderName.
	PAXHeaderName       string
	PAXGlobalHeaderName string

	SnapshotTable *snapshot.Table

	Logger *slog.Logger
}

// WithFormat selects the format a Writer targets. Ignored by Reader,
// which always autodetects.
func WithFormat(f Format) Option { return func(c *CodecContext) { c.Format = f } }

// WithRecordBlocks sets the blocking factor (blocks per physical
// record); the zero value uses block.RecordBlocks.
func WithRecordBlocks(n int) Option { return func(c *CodecContext) { c.RecordBlocks = n } }

// WithLenient enables resynchronization past corrupted headers instead
// of failing the whole read. This is the default, matching GNU tar's
// own forgiving behavior.
func WithLenient() Option { return func(c *CodecContext) { c.Lenient = true; c.FailFast = false } }

// WithFailFast is the complement of WithLenient: the first malformed
// header aborts Next immediately.
func WithFailFast() Option { return func(c *CodecContext) { c.FailFast = true; c.Lenient = false } }

// WithPreserveEmptySparseQuirk sets CodecContext.PreserveEmptySparseQuirk,
// the flag for GNU tar's historic (realSize-1, 1) sentinel entry for a
// sparse file with no data. The flag is only recorded: neither Reader
// nor Writer reads it, and sparse.Dump reports such a file as an empty
// map whether or not it is set.
func WithPreserveEmptySparseQuirk() Option {
	return func(c *CodecContext) { c.PreserveEmptySparseQuirk = true }
}

// WithPAXOverrides configures the pax key-deletion/override policy:
// global applies once per archive, perFile on every entry, and deletes
// drops any key matching a doublestar glob pattern. Returns an error
// if any pattern or key targets a protected key (path, size,
// GNU.sparse.*).
func WithPAXOverrides(global, perFile map[string]string, deletes []string) (Option, error) {
	ov, del, err := pax.NewOverridePolicy(global, perFile, deletes)
	if err != nil {
		return nil, err
	}
	return func(c *CodecContext) { c.PAXOverrides, c.PAXDeletes = ov, del }, nil
}

// WithPAXHeaderName overrides the naming template for per-entry pax
// extended-header auxiliary records written by a Writer.
func WithPAXHeaderName(tmpl string) Option {
	return func(c *CodecContext) { c.PAXHeaderName = tmpl }
}

// WithPAXGlobalHeaderName overrides the naming template for pax global
// extended-header auxiliary records written by Writer.WriteGlobalHeader.
func WithPAXGlobalHeaderName(tmpl string) Option {
	return func(c *CodecContext) { c.PAXGlobalHeaderName = tmpl }
}

// WithSnapshotTable attaches a persistent directory table for the
// incremental-snapshot protocol; the caller owns opening it via
// snapshot.OpenTable and closing it via CodecContext.Close.
func WithSnapshotTable(t *snapshot.Table) Option {
	return func(c *CodecContext) { c.SnapshotTable = t }
}

// Close releases any resources the context owns, currently just the
// optional snapshot table.
func (c *CodecContext) Close() error {
	if c.SnapshotTable != nil {
		return c.SnapshotTable.Close()
	}
	return nil
}

// WithLogger attaches a structured logger; nil (the default) disables
// logging entirely.
func WithLogger(l *slog.Logger) Option { return func(c *CodecContext) { c.Logger = l } }

func newContext(opts []Option) *CodecContext {
	cx := &CodecContext{Format: FormatUSTAR | FormatPAX, Lenient: true}
	for _, o := range opts {
		o(cx)
	}
	return cx
}

func (c *CodecContext) log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Reader reads a sequence of Logical Entries from an archive stream.
type Reader struct {
	cx     *CodecContext
	parser *header.Parser
	cur    io.Reader
}

// NewReader returns a Reader reading r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	cx := newContext(opts)
	p := header.NewParser(r)
	p.Lenient = cx.Lenient
	p.PAXDeletes = cx.PAXDeletes
	return &Reader{cx: cx, parser: p}
}

// Next advances to the next Logical Entry and returns its Header. A
// subsequent Read call streams that entry's reconstructed content,
// hole-expanded automatically when the entry is sparse.
func (r *Reader) Next() (*Header, error) {
	hdr, payload, err := r.parser.Next()
	if err != nil {
		return nil, err
	}
	if hdr.Typeflag == TypeGNUSparse || len(hdr.SparseMap) > 0 {
		entries := make([]sparse.Entry, len(hdr.SparseMap))
		for i, e := range hdr.SparseMap {
			entries[i] = sparse.Entry{Offset: e.Offset, Length: e.Length}
		}
		r.cur = sectionreader.NewSparseReader(entries, hdr.RealSize, payload)
	} else {
		r.cur = payload
	}
	r.cx.log().Debug("tarcore: read entry", "name", hdr.Name, "format", hdr.Format.String(), "size", hdr.Size)
	return hdr, nil
}

// Read streams the current entry's content, as set up by the most
// recent call to Next.
func (r *Reader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, io.EOF
	}
	return r.cur.Read(p)
}

// Writer writes a sequence of Logical Entries to an archive stream.
type Writer struct {
	cx      *CodecContext
	builder *header.Builder
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	cx := newContext(opts)
	recordBlocks := cx.RecordBlocks
	if recordBlocks <= 0 {
		recordBlocks = block.RecordBlocks
	}
	b := header.NewBuilder(w, recordBlocks)
	b.PreferredFormat = cx.Format
	b.PAXOverrides = cx.PAXOverrides
	b.PAXDeletes = cx.PAXDeletes
	b.PAXHeaderName = cx.PAXHeaderName
	b.PAXGlobalHeaderName = cx.PAXGlobalHeaderName
	return &Writer{cx: cx, builder: b}
}

// WriteHeader writes hdr's main (and any auxiliary) records. The
// caller must then Write exactly the entry's data-run bytes.
func (w *Writer) WriteHeader(hdr *Header) error {
	w.cx.log().Debug("tarcore: write entry", "name", hdr.Name, "size", hdr.Size)
	return w.builder.WriteHeader(hdr)
}

// Write streams payload bytes for the most recently written header.
func (w *Writer) Write(p []byte) (int, error) { return w.builder.Write(p) }

// WriteGlobalHeader emits a pax global extended-header record carrying
// records that every following entry inherits until the next global
// header overrides them.
func (w *Writer) WriteGlobalHeader(records map[string]string) error {
	w.cx.log().Debug("tarcore: write global header", "records", len(records))
	return w.builder.WriteGlobalHeader(records)
}

// Close finalizes the archive (terminator plus final record padding).
func (w *Writer) Close() error { return w.builder.Close() }
