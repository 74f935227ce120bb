package sync

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PullOptions excludes remote files from a bulk pull. Excluded files are
// neither compared nor downloaded.
type PullOptions struct {
	// SkipExtensions lists file extensions to skip, with or without the
	// leading dot, matched case-insensitively ("pdf" skips "a.PDF").
	SkipExtensions []string

	// MaxFileSize skips files strictly larger than this many bytes.
	// Zero means no limit.
	MaxFileSize int64

	// SkipPatterns are doublestar globs matched against the path relative
	// to the local root ("theme/media/**"). A matching directory is not
	// descended into.
	SkipPatterns []string
}

// FilterResult is the outcome of a pull filter check. Reason is set when
// Included is false.
type FilterResult struct {
	Included bool
	Reason   string
}

// PullFilter applies PullOptions plus the path policy to remote entries.
type PullFilter struct {
	extensions map[string]struct{}
	maxSize    int64
	patterns   []string
	logger     *slog.Logger
}

// NewPullFilter validates opts and builds a filter. Invalid glob patterns
// are rejected up front so a walk never fails halfway on a bad pattern.
func NewPullFilter(opts PullOptions, logger *slog.Logger) (*PullFilter, error) {
	if opts.MaxFileSize < 0 {
		return nil, fmt.Errorf("sync: negative max file size %d", opts.MaxFileSize)
	}

	for _, p := range opts.SkipPatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("sync: invalid skip pattern %q", p)
		}
	}

	exts := make(map[string]struct{}, len(opts.SkipExtensions))
	for _, ext := range opts.SkipExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts[ext] = struct{}{}
		}
	}

	return &PullFilter{
		extensions: exts,
		maxSize:    opts.MaxFileSize,
		patterns:   opts.SkipPatterns,
		logger:     logger,
	}, nil
}

// CheckDir decides whether the walk descends into the remote directory at
// rel. Directory names are not subject to the path policy.
func (f *PullFilter) CheckDir(rel string) FilterResult {
	if pattern, ok := f.matchPattern(rel); ok {
		return f.excluded(rel, "matches skip pattern "+pattern)
	}

	return FilterResult{Included: true}
}

// CheckFile decides whether the remote file at rel with the given size takes
// part in the pull.
func (f *PullFilter) CheckFile(rel string, size int64) FilterResult {
	name := path.Base(rel)

	if !IsSynchronizable(name) {
		return f.excluded(rel, "unsynchronizable name")
	}

	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), ".")); ext != "" {
		if _, skip := f.extensions[ext]; skip {
			return f.excluded(rel, "skipped extension ."+ext)
		}
	}

	if f.maxSize > 0 && size > f.maxSize {
		return f.excluded(rel, fmt.Sprintf("size %d exceeds limit %d", size, f.maxSize))
	}

	if pattern, ok := f.matchPattern(rel); ok {
		return f.excluded(rel, "matches skip pattern "+pattern)
	}

	return FilterResult{Included: true}
}

func (f *PullFilter) matchPattern(rel string) (string, bool) {
	for _, p := range f.patterns {
		// Patterns were validated in NewPullFilter, so Match cannot fail.
		if ok, _ := doublestar.Match(p, rel); ok {
			return p, true
		}
	}

	return "", false
}

func (f *PullFilter) excluded(rel, reason string) FilterResult {
	f.logger.Debug("excluded from pull", slog.String("path", rel), slog.String("reason", reason))

	return FilterResult{Included: false, Reason: reason}
}
