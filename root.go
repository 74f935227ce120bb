package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/ftpsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that do not need the resolved
// configuration (config init writes it).
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the persistent flag values.
type CLIFlags struct {
	ConfigPath string
	LocalRoot  string
	RemoteRoot string
	Root       string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and carried
// on the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved // nil for commands annotated with skipConfigAnnotation
	Logger *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. Panics
// if called outside a command run.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:   "ftpsync",
		Short: "Mirror a local directory tree to an FTP server",
		Long: `Keep a local directory tree and a remote FTP tree in correspondence.

pull mirrors the remote tree locally, push uploads the local tree, and watch
publishes local edits to the server as they happen.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, *flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.LocalRoot, "local-root", "", "local directory mirrored to the remote root")
	pf.StringVar(&flags.RemoteRoot, "remote-root", "", "remote directory mirroring the local root")
	pf.StringVar(&flags.Root, "root", "", "subtree, relative to the local root, to sync")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// newCLIContext loads .env, resolves the configuration from the four-layer
// override chain and builds the logger.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cc := &CLIContext{Flags: flags}

	if cmd.Annotations[skipConfigAnnotation] == "" {
		cfg, err := loadConfig(cmd, flags)
		if err != nil {
			return nil, err
		}

		cc.Cfg = cfg
	}

	cc.Logger = buildLogger(cc.Cfg, flags, os.Stderr)

	return cc, nil
}

// loadConfig resolves the effective configuration. Only flags the user
// explicitly set are passed on as overrides.
func loadConfig(cmd *cobra.Command, flags CLIFlags) (*config.Resolved, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, err
	}

	env, err := config.ReadEnvOverrides()
	if err != nil {
		return nil, err
	}

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("local-root") {
		cli.LocalRoot = &flags.LocalRoot
	}

	if cmd.Flags().Changed("remote-root") {
		cli.RemoteRoot = &flags.RemoteRoot
	}

	if cmd.Flags().Changed("root") {
		cli.Root = &flags.Root
	}

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(newLogHandler(w, format, level))
}

// newLogHandler picks the handler for log_format. "auto" uses colored tint
// output on a terminal and plain text otherwise.
func newLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "color":
		return tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.TimeOnly})
	}

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.TimeOnly})
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
