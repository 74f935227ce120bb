package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every config section.
var knownKeys = map[string][]string{
	"server":  {"host", "port", "user", "password", "connect_timeout"},
	"sync":    {"local_root", "remote_root", "root", "debounce", "batch_timeout", "compare_time", "preserve_times", "shutdown_timeout", "bandwidth_limit"},
	"pull":    {"skip_extensions", "max_file_size", "skip_patterns"},
	"logging": {"log_level", "log_format"},
	"journal": {"enabled", "path"},
	"metrics": {"listen"},
}

// knownSections is the sorted section list for Levenshtein matching. Sorted
// for deterministic suggestions when two candidates have the same distance.
var knownSections = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	sort.Strings(sections)

	return sections
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	// An unknown table is reported once, not once per key inside it.
	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(md, key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(md *toml.MetaData, key toml.Key) error {
	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		if len(key) == 1 && md.Type(section) != "Hash" {
			// A bare top-level key: every setting lives in a section.
			return suggest(fmt.Sprintf("unknown config key %q", section), section, allKeys())
		}

		return suggest(fmt.Sprintf("unknown config section [%s]", section), section, knownSections)
	}

	name := key[1]

	return suggest(fmt.Sprintf("unknown config key %q in [%s]", name, section), name, keys)
}

func suggest(msg, unknown string, known []string) error {
	if s := closestMatch(unknown, known); s != "" {
		return fmt.Errorf("%s; did you mean %q?", msg, s)
	}

	return errors.New(msg)
}

// allKeys returns every "section.key" pair, sorted.
func allKeys() []string {
	var out []string

	for _, section := range knownSections {
		for _, k := range knownKeys[section] {
			out = append(out, section+"."+k)
		}
	}

	return out
}

// closestMatch finds the closest known key by Levenshtein distance.
// A dotted candidate also matches on its last segment, so a misplaced
// top-level "host" suggests "server.host".
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		leaf := k[strings.LastIndex(k, ".")+1:]

		d := min(levenshtein(unknown, k), levenshtein(unknown, leaf))
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
