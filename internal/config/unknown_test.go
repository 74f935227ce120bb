package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_InSection(t *testing.T) {
	path := writeTestConfig(t, "[server]\nhots = \"x\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "hots" in [server]`)
	assert.Contains(t, err.Error(), `did you mean "host"?`)
}

func TestLoad_UnknownKey_MisplacedTopLevel(t *testing.T) {
	path := writeTestConfig(t, "host = \"ftp.example.com\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "host"`)
	assert.Contains(t, err.Error(), `"server.host"`)
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, "[servr]\nhost = \"a\"\nport = 21\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config section [servr]")
	assert.Contains(t, err.Error(), `did you mean "server"?`)
	assert.Equal(t, 1, strings.Count(err.Error(), "servr"))
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[pull]\ncompletely_unrelated = 1\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completely_unrelated")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"host", "host", 0},
		{"hots", "host", 2},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%s/%s", tt.a, tt.b)
	}
}
