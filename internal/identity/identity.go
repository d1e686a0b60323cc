// Package identity computes the directory/file identity keys used by
// the incremental-snapshot protocol to recognize an unchanged
// directory across runs: a (device, inode) pair, hashed down to a
// fixed-size cache key with xxhash.
package identity

import (
	"encoding/binary"
	"io/fs"

	"github.com/cespare/xxhash/v2"
)

// Key is an opaque, comparable, cache-friendly identity for a
// directory: the hash of its (device, inode) pair.
type Key uint64

// DevIno is the (device, inode) pair backing a Key; NFS devices are
// allowed to vary between runs, so two DevInos with equal Ino but
// differing Dev can still be judged the same directory by
// snapshot.Decide when its nfsRelax argument is set.
type DevIno struct {
	Dev uint64
	Ino uint64
}

// KeyOf hashes a DevIno into a Key.
func KeyOf(di DevIno) Key {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], di.Dev)
	binary.LittleEndian.PutUint64(buf[8:16], di.Ino)
	return Key(xxhash.Sum64(buf[:]))
}

// FromFileInfo extracts a DevIno from fi when the underlying platform
// exposes one (via the Sys() *syscall.Stat_t escape hatch); ok is false
// on platforms or pseudo-filesystems (e.g. an in-memory fs.FS) that
// cannot supply one, in which case the caller falls back to treating
// the directory as always-new.
func FromFileInfo(fi fs.FileInfo) (DevIno, bool) {
	return statDevIno(fi)
}
