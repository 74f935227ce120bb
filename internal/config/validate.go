package config

import (
	"errors"
	"fmt"
	"net"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Validation range constants.
const (
	minPort            = 1
	maxPort            = 65535
	minConnectTimeout  = 1 * time.Second
	minDebounce        = 10 * time.Millisecond
	minShutdownTimeout = 1 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validatePull(&cfg.Pull)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if strings.TrimSpace(s.Host) == "" {
		errs = append(errs, errors.New("server.host: must not be empty"))
	}

	if s.Port < minPort || s.Port > maxPort {
		errs = append(errs, fmt.Errorf("server.port: must be between %d and %d, got %d", minPort, maxPort, s.Port))
	}

	errs = append(errs, validateDurationMin("server.connect_timeout", s.ConnectTimeout, minConnectTimeout)...)

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.LocalRoot == "" {
		errs = append(errs, errors.New("sync.local_root: must not be empty"))
	}

	if !strings.HasPrefix(s.RemoteRoot, "/") {
		errs = append(errs, fmt.Errorf("sync.remote_root: must start with /, got %q", s.RemoteRoot))
	}

	errs = append(errs, validateRoot(s.Root)...)
	errs = append(errs, validateDurationMin("sync.debounce", s.Debounce, minDebounce)...)
	errs = append(errs, validateDurationNonNeg("sync.batch_timeout", s.BatchTimeout)...)
	errs = append(errs, validateDurationMin("sync.shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	if _, err := ParseRate(s.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("sync.bandwidth_limit: %w", err))
	}

	if s.CompareTime != "atime" && s.CompareTime != "mtime" {
		errs = append(errs, fmt.Errorf("sync.compare_time: must be atime or mtime, got %q", s.CompareTime))
	}

	return errs
}

// validateRoot requires a relative, slash-separated path inside the local root.
func validateRoot(root string) []error {
	if root == "" {
		return []error{errors.New("sync.root: must not be empty")}
	}

	clean := path.Clean(root)
	if path.IsAbs(root) || clean == ".." || strings.HasPrefix(clean, "../") {
		return []error{fmt.Errorf("sync.root: must be relative to local_root, got %q", root)}
	}

	return nil
}

func validatePull(p *PullConfig) []error {
	var errs []error

	if _, err := ParseSize(p.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("pull.max_file_size: %w", err))
	}

	for _, pattern := range p.SkipPatterns {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("pull.skip_patterns: invalid pattern %q", pattern))
		}
	}

	for _, ext := range p.SkipExtensions {
		if strings.ContainsAny(ext, "/\\") {
			errs = append(errs, fmt.Errorf("pull.skip_extensions: invalid extension %q", ext))
		}
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	if value == "0" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto":  true,
	"text":  true,
	"json":  true,
	"color": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json, color; got %q", format)}
	}

	return nil
}

func validateMetrics(m *MetricsConfig) []error {
	if m.Listen == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return []error{fmt.Errorf("metrics.listen: %w", err)}
	}

	return nil
}
