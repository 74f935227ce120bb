package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// localConfigFile is looked up in the working directory before the
// platform config directory.
const localConfigFile = "ftpsync.toml"

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ConfigPath picks the config file: CLI > env > ./ftpsync.toml when it
// exists > platform default.
func ConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	if _, err := os.Stat(localConfigFile); err == nil {
		return localConfigFile
	}

	return DefaultConfigPath()
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns a fully resolved and validated configuration ready for use.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := ConfigPath(env, cli)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	// The file was validated on load; overrides can break it again.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath)
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.Host != "" {
		cfg.Server.Host = env.Host
	}

	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}

	if env.User != "" {
		cfg.Server.User = env.User
	}

	if env.Password != "" {
		cfg.Server.Password = env.Password
	}

	if env.LocalRoot != "" {
		cfg.Sync.LocalRoot = env.LocalRoot
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.LocalRoot != nil {
		cfg.Sync.LocalRoot = *cli.LocalRoot
	}

	if cli.RemoteRoot != nil {
		cfg.Sync.RemoteRoot = *cli.RemoteRoot
	}

	if cli.Root != nil {
		cfg.Sync.Root = *cli.Root
	}
}

// resolve parses durations and sizes of an already validated Config.
func resolve(cfg *Config, cfgPath string) (*Resolved, error) {
	localRoot, err := filepath.Abs(expandTilde(cfg.Sync.LocalRoot))
	if err != nil {
		return nil, fmt.Errorf("sync.local_root: %w", err)
	}

	r := &Resolved{
		Config:      *cfg,
		ConfigPath:  cfgPath,
		LocalRoot:   localRoot,
		JournalPath: expandTilde(cfg.Journal.Path),
	}

	if r.JournalPath == "" {
		r.JournalPath = DefaultJournalPath()
	}

	// Validate already accepted every value, so these cannot fail.
	r.ConnectTimeout = validDuration(cfg.Server.ConnectTimeout)
	r.Debounce = validDuration(cfg.Sync.Debounce)
	r.BatchTimeout = validDuration(cfg.Sync.BatchTimeout)
	r.ShutdownTimeout = validDuration(cfg.Sync.ShutdownTimeout)
	r.MaxFileSize, _ = ParseSize(cfg.Pull.MaxFileSize)
	r.BandwidthLimit, _ = ParseRate(cfg.Sync.BandwidthLimit)

	return r, nil
}

func validDuration(s string) time.Duration {
	if s == "" || s == "0" {
		return 0
	}

	d, _ := time.ParseDuration(s)

	return d
}
