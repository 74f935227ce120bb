//go:build !linux && !darwin

package sync

import (
	"errors"
	"time"
)

// accessTime is unsupported here; callers fall back to the modification time.
func accessTime(string) (time.Time, error) {
	return time.Time{}, errors.ErrUnsupported
}
