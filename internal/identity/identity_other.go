//go:build !unix

package identity

import (
	"fmt"
	"io/fs"
)

func statDevIno(fi fs.FileInfo) (DevIno, bool) {
	return DevIno{}, false
}

// StatPath is unavailable outside unix; the incremental-snapshot walker
// treats every directory it cannot identify as unconditionally new.
func StatPath(path string) (DevIno, error) {
	return DevIno{}, fmt.Errorf("identity: dev/ino stat unsupported on this platform")
}
