package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is owner read/write only: the file may hold the
// FTP password.
const configFilePermissions = 0o600

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteTemplate when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

// configTemplate is the file written by "config init". Every setting is
// present as a commented-out default so users can discover each option.
const configTemplate = `# ftpsync configuration
# Uncomment and modify to override defaults. Credentials can also be set
# with FTPSYNC_USER / FTPSYNC_PASSWORD or in a .env file.

[server]
# host = "ftp.kiubi-web.com"
# port = 21
# user = ""
# password = ""
# connect_timeout = "10s"

[sync]
# Local directory the tree is mirrored under.
# local_root = "."
# Remote directory that corresponds to local_root.
# remote_root = "/"
# Subtree (relative to local_root) pulled, pushed and watched.
# root = "theme"
# Quiet period before queued changes are published.
# debounce = "300ms"
# Deadline for one published batch; "0" disables it.
# batch_timeout = "0"
# Local timestamp compared with the remote one on pull: atime or mtime.
# compare_time = "atime"
# Set local file times to the remote time after a download.
# preserve_times = true
# shutdown_timeout = "30s"
# Combined transfer rate limit, e.g. "512KiB/s"; "0" is unlimited.
# bandwidth_limit = "0"

[pull]
# skip_extensions = ["pdf", "zip"]
# max_file_size = "0"
# skip_patterns = ["theme/media/**"]

[logging]
# log_level = "info"
# Handler: auto, text, json, color
# log_format = "auto"

[journal]
# enabled = true
# path = ""

[metrics]
# Prometheus endpoint for watch mode, e.g. "127.0.0.1:9310".
# listen = ""
`

// WriteTemplate creates a config file at path from the default template.
// It refuses to overwrite an existing file. The write is atomic (temp file
// + rename) and parent directories are created as needed.
func WriteTemplate(path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	logger.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
