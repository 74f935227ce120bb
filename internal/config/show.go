package config

import (
	"fmt"
	"io"
	"strings"
)

// passwordMask replaces a configured password in rendered output.
const passwordMask = "********"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command. The
// password is masked.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	renderServerSection(ew, &r.Server)
	renderSyncSection(ew, r)
	renderPullSection(ew, &r.Pull)
	renderLoggingSection(ew, &r.Logging)
	renderJournalSection(ew, r)
	renderMetricsSection(ew, &r.Metrics)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderServerSection(ew *errWriter, s *ServerConfig) {
	password := ""
	if s.Password != "" {
		password = passwordMask
	}

	ew.printf("[server]\n")
	ew.printf("  host            = %q\n", s.Host)
	ew.printf("  port            = %d\n", s.Port)
	ew.printf("  user            = %q\n", s.User)
	ew.printf("  password        = %q\n", password)
	ew.printf("  connect_timeout = %q\n", s.ConnectTimeout)
	ew.printf("\n")
}

func renderSyncSection(ew *errWriter, r *Resolved) {
	s := &r.Sync

	ew.printf("[sync]\n")
	ew.printf("  local_root       = %q\n", r.LocalRoot)
	ew.printf("  remote_root      = %q\n", s.RemoteRoot)
	ew.printf("  root             = %q\n", s.Root)
	ew.printf("  debounce         = %q\n", s.Debounce)
	ew.printf("  batch_timeout    = %q\n", s.BatchTimeout)
	ew.printf("  compare_time     = %q\n", s.CompareTime)
	ew.printf("  preserve_times   = %t\n", s.PreserveTimes)
	ew.printf("  shutdown_timeout = %q\n", s.ShutdownTimeout)
	ew.printf("  bandwidth_limit  = %q\n", s.BandwidthLimit)
	ew.printf("\n")
}

func renderPullSection(ew *errWriter, p *PullConfig) {
	ew.printf("[pull]\n")
	ew.printf("  max_file_size   = %q\n", p.MaxFileSize)

	if len(p.SkipExtensions) > 0 {
		ew.printf("  skip_extensions = [%s]\n", joinQuoted(p.SkipExtensions))
	}

	if len(p.SkipPatterns) > 0 {
		ew.printf("  skip_patterns   = [%s]\n", joinQuoted(p.SkipPatterns))
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderJournalSection(ew *errWriter, r *Resolved) {
	ew.printf("[journal]\n")
	ew.printf("  enabled = %t\n", r.Journal.Enabled)
	ew.printf("  path    = %q\n", r.JournalPath)
	ew.printf("\n")
}

func renderMetricsSection(ew *errWriter, m *MetricsConfig) {
	ew.printf("[metrics]\n")
	ew.printf("  listen = %q\n", m.Listen)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
