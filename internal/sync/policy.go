package sync

import (
	"path"
	"strings"
)

// lockSuffix marks editor lock files (Dreamweaver and similar) that FTP
// servers refuse and that must never be transferred.
const lockSuffix = ".LCK"

// IsSynchronizable reports whether a file with the given name may be
// transferred. Hidden names (leading ".") and lock files (".LCK" suffix) are
// rejected. Only the last path segment is inspected.
func IsSynchronizable(name string) bool {
	base := path.Base(name)
	if base == "" || base == "." || base == "/" {
		return false
	}

	if strings.HasPrefix(base, ".") {
		return false
	}

	return !strings.HasSuffix(base, lockSuffix)
}
