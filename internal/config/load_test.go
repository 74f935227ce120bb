package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[server]
host = "ftp.example.com"
port = 2121
user = "deploy"
password = "secret"
connect_timeout = "5s"

[sync]
local_root = "/srv/site"
remote_root = "/www"
root = "assets"
debounce = "1s"
batch_timeout = "2m"
compare_time = "mtime"
preserve_times = false
shutdown_timeout = "10s"

[pull]
skip_extensions = ["pdf", "zip"]
max_file_size = "1MiB"
skip_patterns = ["assets/media/**"]

[logging]
log_level = "debug"
log_format = "json"

[journal]
enabled = false
path = "/tmp/j.db"

[metrics]
listen = "127.0.0.1:9310"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ftp.example.com", cfg.Server.Host)
	assert.Equal(t, 2121, cfg.Server.Port)
	assert.Equal(t, "deploy", cfg.Server.User)
	assert.Equal(t, "secret", cfg.Server.Password)
	assert.Equal(t, "/www", cfg.Sync.RemoteRoot)
	assert.Equal(t, "assets", cfg.Sync.Root)
	assert.Equal(t, "mtime", cfg.Sync.CompareTime)
	assert.False(t, cfg.Sync.PreserveTimes)
	assert.Equal(t, []string{"pdf", "zip"}, cfg.Pull.SkipExtensions)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "127.0.0.1:9310", cfg.Metrics.Listen)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[server]\nuser = \"deploy\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ftp.kiubi-web.com", cfg.Server.Host)
	assert.Equal(t, 21, cfg.Server.Port)
	assert.Equal(t, "deploy", cfg.Server.User)
	assert.Equal(t, "300ms", cfg.Sync.Debounce)
	assert.Equal(t, "theme", cfg.Sync.Root)
	assert.True(t, cfg.Sync.PreserveTimes)
	assert.True(t, cfg.Journal.Enabled)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[server\nhost = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeTestConfig(t, "[server]\nport = 0\n[sync]\ncompare_time = \"ctime\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "sync.compare_time")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigPath_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	assert.Equal(t, "/cli.toml", ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{ConfigPath: "/cli.toml"}))
	assert.Equal(t, "/env.toml", ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{}))

	if DefaultConfigPath() != "" {
		assert.Equal(t, DefaultConfigPath(), ConfigPath(EnvOverrides{}, CLIOverrides{}))
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ftpsync.toml"), nil, 0o600))
	assert.Equal(t, "ftpsync.toml", ConfigPath(EnvOverrides{}, CLIOverrides{}))
}

func TestResolve_OverrideChain(t *testing.T) {
	root := t.TempDir()
	path := writeTestConfig(t, `
[server]
host = "file.example.com"
user = "file-user"

[sync]
local_root = "/from/file"
remote_root = "/www"
`)

	cliRoot := root
	cliSub := "site"

	r, err := Resolve(
		EnvOverrides{Host: "env.example.com", Port: 2121, Password: "env-pass", LocalRoot: "/from/env"},
		CLIOverrides{ConfigPath: path, LocalRoot: &cliRoot, Root: &cliSub},
	)
	require.NoError(t, err)

	assert.Equal(t, path, r.ConfigPath)
	assert.Equal(t, "env.example.com", r.Server.Host)
	assert.Equal(t, 2121, r.Server.Port)
	assert.Equal(t, "file-user", r.Server.User)
	assert.Equal(t, "env-pass", r.Server.Password)
	assert.Equal(t, root, r.LocalRoot)
	assert.Equal(t, "/www", r.Sync.RemoteRoot)
	assert.Equal(t, "site", r.Sync.Root)
	assert.Equal(t, 300*time.Millisecond, r.Debounce)
	assert.Equal(t, 10*time.Second, r.ConnectTimeout)
	assert.Equal(t, 30*time.Second, r.ShutdownTimeout)
	assert.Zero(t, r.BatchTimeout)
	assert.NotEmpty(t, r.JournalPath)
}

func TestResolve_ParsesValues(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
local_root = "relative/dir"
batch_timeout = "90s"

[pull]
max_file_size = "2KiB"

[journal]
path = "/var/lib/ftpsync/j.db"
`)

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(wd, "relative", "dir"), r.LocalRoot)
	assert.Equal(t, 90*time.Second, r.BatchTimeout)
	assert.Equal(t, int64(2048), r.MaxFileSize)
	assert.Equal(t, "/var/lib/ftpsync/j.db", r.JournalPath)
}

func TestResolve_OverrideFailsValidation(t *testing.T) {
	path := writeTestConfig(t, "")
	bad := "../outside"

	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path, Root: &bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.root")
}
