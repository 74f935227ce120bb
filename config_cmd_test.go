package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit_WritesTemplateOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ftpsync", "config.toml")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "--quiet", "config", "init"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[server]")

	again := newRootCmd()
	again.SetArgs([]string{"--config", path, "--quiet", "config", "init"})
	assert.Error(t, again.Execute())
}

func TestConfigShow_InvalidConfigFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nhots = \"x\"\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "host"`)
}
