package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/ftpsync.toml")
	t.Setenv(EnvHost, "ftp.example.com")
	t.Setenv(EnvPort, "2121")
	t.Setenv(EnvUser, "deploy")
	t.Setenv(EnvPassword, "secret")
	t.Setenv(EnvLocalRoot, "/srv/site")

	env, err := ReadEnvOverrides()
	require.NoError(t, err)

	assert.Equal(t, EnvOverrides{
		ConfigPath: "/etc/ftpsync.toml",
		Host:       "ftp.example.com",
		Port:       2121,
		User:       "deploy",
		Password:   "secret",
		LocalRoot:  "/srv/site",
	}, env)
}

func TestReadEnvOverrides_InvalidPort(t *testing.T) {
	t.Setenv(EnvPort, "ftp")

	_, err := ReadEnvOverrides()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPort)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FTPSYNC_USER=from-dotenv\nFTPSYNC_HOST=dotenv.example.com\n"), 0o600))

	t.Setenv(EnvHost, "already-set.example.com")
	// Registers cleanup for the variable LoadDotEnv sets.
	t.Setenv(EnvUser, "")
	require.NoError(t, os.Unsetenv(EnvUser))

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-dotenv", os.Getenv(EnvUser))
	assert.Equal(t, "already-set.example.com", os.Getenv(EnvHost))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}
