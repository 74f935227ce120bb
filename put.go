package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <path>...",
		Short: "Upload single files immediately",
		Long: `Upload each file to its mirrored remote path without going through the
queue. Paths are relative to the local root; absolute paths inside the local
root are accepted too. The remote parent directory is created if missing.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	s, err := newSyncSession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	defer s.Close()

	var errs []error

	for _, arg := range args {
		rel, err := localRelPath(cc.Cfg.LocalRoot, arg)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		report, err := s.engine.PutFile(cmd.Context(), rel)
		if report != nil {
			printTreeReport(cc, report)
		}

		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// localRelPath converts a command-line path to the slash-separated form
// relative to localRoot.
func localRelPath(localRoot, p string) (string, error) {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	rel, err := filepath.Rel(localRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the local root %s", p, localRoot)
	}

	return filepath.ToSlash(rel), nil
}
