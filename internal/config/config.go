// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ftpsync. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// Credentials are usually kept out of the config file and supplied through
// the environment or a .env file in the working directory.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Sync    SyncConfig    `toml:"sync"`
	Pull    PullConfig    `toml:"pull"`
	Logging LoggingConfig `toml:"logging"`
	Journal JournalConfig `toml:"journal"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig holds the FTP connection parameters. Values are passed
// through to the server unmodified.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	ConnectTimeout string `toml:"connect_timeout"`
}

// SyncConfig controls the local/remote mapping and the queue.
type SyncConfig struct {
	LocalRoot       string `toml:"local_root"`
	RemoteRoot      string `toml:"remote_root"`
	Root            string `toml:"root"`
	Debounce        string `toml:"debounce"`
	BatchTimeout    string `toml:"batch_timeout"`
	CompareTime     string `toml:"compare_time"`
	PreserveTimes   bool   `toml:"preserve_times"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	BandwidthLimit  string `toml:"bandwidth_limit"`
}

// PullConfig excludes remote files from bulk pulls.
type PullConfig struct {
	SkipExtensions []string `toml:"skip_extensions"`
	MaxFileSize    string   `toml:"max_file_size"`
	SkipPatterns   []string `toml:"skip_patterns"`
}

// LoggingConfig controls log output: level and handler format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// JournalConfig controls the SQLite run journal. An empty Path means
// journal.db in the platform data directory.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// MetricsConfig controls the Prometheus endpoint served in watch mode.
// An empty Listen disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	LocalRoot  *string // --local-root flag
	RemoteRoot *string // --remote-root flag
	Root       *string // --root flag
}

// Resolved is a fully resolved and validated configuration with string
// durations and sizes parsed and paths made absolute.
type Resolved struct {
	Config

	// ConfigPath is the file the configuration was read from. The file
	// may not exist when running on defaults.
	ConfigPath string

	// LocalRoot is Sync.LocalRoot made absolute.
	LocalRoot string

	// JournalPath is Journal.Path with the default applied.
	JournalPath string

	ConnectTimeout  time.Duration
	Debounce        time.Duration
	BatchTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxFileSize     int64
	BandwidthLimit  int64 // bytes per second, 0 = unlimited
}
