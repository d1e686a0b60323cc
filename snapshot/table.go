package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/dgryski/go-tinylfu"

	"github.com/archiveengine/tarcore/internal/identity"
)

// Table is the persistent directory table backing a long-lived
// incremental-backup series: it remembers every directory's last-known
// Entry across runs, keyed by identity.Key, so that Decide can be
// called without re-parsing the whole snapshot file into memory.
//
// OpenTable("", ...) opens an in-memory pebble store via vfs.NewMem(),
// for callers (tests, one-shot dumps) that don't need the table to
// survive the process, since the text snapshot file written by Encode
// is the durable record regardless. A dgryski/go-tinylfu cache fronts
// the store so that repeated Decide calls during one pass don't round-
// trip through pebble for directories visited more than once.
type Table struct {
	db    *pebble.DB
	cache *tinylfu.T[identity.Key, Entry]
	mu    sync.Mutex
	seed  maphash.Seed
}

// OpenTable opens (or creates) a Table. dir is a pebble store directory
// path, or "" for an ephemeral in-memory store.
func OpenTable(dir string, cacheSize int) (*Table, error) {
	opts := &pebble.Options{}
	if dir == "" {
		opts.FS = vfs.NewMem()
		dir = ""
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening table: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	t := &Table{db: db, seed: maphash.MakeSeed()}
	t.cache = tinylfu.New[identity.Key, Entry](cacheSize, cacheSize*10, t.hashKey)
	return t, nil
}

func (t *Table) hashKey(k identity.Key) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	var h maphash.Hash
	h.SetSeed(t.seed)
	h.Write(buf[:])
	return h.Sum64()
}

// Close closes the underlying pebble store.
func (t *Table) Close() error { return t.db.Close() }

// Lookup returns the directory last recorded under key, if any.
func (t *Table) Lookup(key identity.Key) (Entry, bool) {
	if e, ok := t.cache.Get(key); ok {
		// A cached zero Entry is the tombstone Purge leaves behind.
		return e, e != (Entry{})
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	val, closer, err := t.db.Get(encodeKey(key))
	if err != nil {
		return Entry{}, false
	}
	defer closer.Close()
	e, ok := decodeEntry(val)
	if ok {
		t.cache.Add(key, e)
	}
	return e, ok
}

// Store records e under key, superseding any prior record.
func (t *Table) Store(key identity.Key, e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.db.Set(encodeKey(key), encodeEntryValue(e), pebble.Sync); err != nil {
		return err
	}
	t.cache.Add(key, e)
	return nil
}

// Purge removes key's record, used when extraction deletes a directory
// no longer present in the archive.
func (t *Table) Purge(key identity.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.db.Delete(encodeKey(key), pebble.Sync); err != nil {
		return err
	}
	t.cache.Add(key, Entry{})
	return nil
}

func encodeKey(k identity.Key) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(k))
	return buf[:]
}

func encodeEntryValue(e Entry) []byte {
	buf := make([]byte, 8+8+8+8+1+len(e.Name))
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.MTimeSec))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.MTimeNsec))
	binary.BigEndian.PutUint64(buf[16:24], e.Dev)
	binary.BigEndian.PutUint64(buf[24:32], e.Ino)
	if e.NFSRelaxed {
		buf[32] = 1
	}
	copy(buf[33:], e.Name)
	return buf
}

func decodeEntry(b []byte) (Entry, bool) {
	if len(b) < 33 {
		return Entry{}, false
	}
	return Entry{
		MTimeSec:   int64(binary.BigEndian.Uint64(b[0:8])),
		MTimeNsec:  int64(binary.BigEndian.Uint64(b[8:16])),
		Dev:        binary.BigEndian.Uint64(b[16:24]),
		Ino:        binary.BigEndian.Uint64(b[24:32]),
		NFSRelaxed: b[32] != 0,
		Name:       string(b[33:]),
	}, true
}
