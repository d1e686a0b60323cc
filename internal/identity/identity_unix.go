//go:build unix

package identity

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/unix"
)

func statDevIno(fi fs.FileInfo) (DevIno, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return DevIno{}, false
	}
	return DevIno{Dev: uint64(st.Dev), Ino: st.Ino}, true
}

// StatPath stats path directly via golang.org/x/sys/unix, for the
// incremental-snapshot walker, which needs dev/ino identity even for
// directories it reaches without first building an fs.FileInfo.
func StatPath(path string) (DevIno, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return DevIno{}, err
	}
	return DevIno{Dev: uint64(st.Dev), Ino: st.Ino}, nil
}
