package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ftpsync/internal/config"
	isync "github.com/tonimelisma/ftpsync/internal/sync"
)

func newPullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull [root]",
		Short: "Download the remote tree into the local tree",
		Long: `Mirror the remote tree under root (default: sync.root) into the local
directory. Files whose size matches and whose local timestamp is within one
second of the remote modification time are skipped.

--skip-ext, --max-size and --skip-pattern replace the [pull] settings for
this run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPull,
	}

	cmd.Flags().StringSlice("skip-ext", nil, "file extensions to skip (repeatable, e.g. pdf,zip)")
	cmd.Flags().String("max-size", "", "skip files larger than this size (e.g. 1MiB)")
	cmd.Flags().StringSlice("skip-pattern", nil, "glob patterns to skip, relative to the local root")

	return cmd
}

func runPull(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	opts, err := pullOptions(cmd, cc.Cfg)
	if err != nil {
		return err
	}

	s, err := newSyncSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.PullAll(cmd.Context(), rootArg(cc, args), opts)
	if report != nil {
		printTreeReport(cc, report)
	}

	return err
}

// pullOptions merges the [pull] config section with the command flags.
// A flag that was set replaces the config value.
func pullOptions(cmd *cobra.Command, cfg *config.Resolved) (isync.PullOptions, error) {
	opts := isync.PullOptions{
		SkipExtensions: cfg.Pull.SkipExtensions,
		MaxFileSize:    cfg.MaxFileSize,
		SkipPatterns:   cfg.Pull.SkipPatterns,
	}

	flags := cmd.Flags()

	if flags.Changed("skip-ext") {
		exts, err := flags.GetStringSlice("skip-ext")
		if err != nil {
			return opts, err
		}

		opts.SkipExtensions = exts
	}

	if flags.Changed("max-size") {
		raw, err := flags.GetString("max-size")
		if err != nil {
			return opts, err
		}

		size, err := config.ParseSize(raw)
		if err != nil {
			return opts, fmt.Errorf("--max-size: %w", err)
		}

		opts.MaxFileSize = size
	}

	if flags.Changed("skip-pattern") {
		patterns, err := flags.GetStringSlice("skip-pattern")
		if err != nil {
			return opts, err
		}

		opts.SkipPatterns = patterns
	}

	return opts, nil
}

// rootArg returns the subtree argument, defaulting to sync.root.
func rootArg(cc *CLIContext, args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return cc.Cfg.Sync.Root
}
