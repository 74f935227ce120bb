package main

import (
	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [root]",
		Short: "Upload the local tree to the remote tree",
		Long: `Upload every file under root (default: sync.root) to its mirrored remote
path, creating remote directories as needed. Every file is sent; there is no
comparison with the remote side. Hidden files and .LCK files are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPush,
	}
}

func runPush(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	s, err := newSyncSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.PushAll(cmd.Context(), rootArg(cc, args))
	if report != nil {
		printTreeReport(cc, report)
	}

	return err
}
