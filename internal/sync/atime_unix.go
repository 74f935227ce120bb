//go:build linux || darwin

package sync

import (
	"time"

	"golang.org/x/sys/unix"
)

// accessTime returns the last access time of the file at realPath.
// Uses unix.Stat because syscall.Stat_t names the field differently on
// Linux (Atim) and macOS (Atimespec); the unix package normalizes it.
func accessTime(realPath string) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Stat(realPath, &st); err != nil {
		return time.Time{}, err
	}

	return time.Unix(st.Atim.Unix()), nil
}
