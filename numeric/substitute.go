package numeric

import (
	"os/user"
	"strconv"
)

// NobodySubstitute is the uid/gid written into a ustar header field in
// place of a value too large to fit, alongside the real value carried
// by a pax extended-header record: the id of the user "nobody" where
// available, else -2.
func NobodySubstitute() int64 {
	u, err := user.Lookup("nobody")
	if err != nil {
		return -2
	}
	n, err := strconv.ParseInt(u.Uid, 10, 64)
	if err != nil {
		return -2
	}
	return n
}
