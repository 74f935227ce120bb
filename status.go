package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ftpsync/internal/journal"
	isync "github.com/tonimelisma/ftpsync/internal/sync"
)

const defaultStatusLimit = 10

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the watcher state and recent sync runs",
		Long: `Display the server, the local and remote roots, whether a watcher is
running for the local root, and the most recent runs from the journal.
With --run, list the operations of one batch instead.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	cmd.Flags().IntP("limit", "n", defaultStatusLimit, "number of runs to show")
	cmd.Flags().String("run", "", "show the operations of this run ID")

	return cmd
}

// statusOutput is the JSON form of the status command.
type statusOutput struct {
	Server     string      `json:"server"`
	LocalRoot  string      `json:"local_root"`
	RemoteRoot string      `json:"remote_root"`
	Watcher    watcherInfo `json:"watcher"`
	Journal    string      `json:"journal,omitempty"`
	Runs       []statusRun `json:"runs"`
}

type watcherInfo struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}

type statusRun struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Root       string    `json:"root,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Commands   int       `json:"commands"`
	Downloaded int       `json:"downloaded"`
	Uploaded   int       `json:"uploaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}

	out := statusOutput{
		Server:     fmt.Sprintf("%s@%s:%d", cfg.Server.User, cfg.Server.Host, cfg.Server.Port),
		LocalRoot:  cfg.LocalRoot,
		RemoteRoot: cfg.Sync.RemoteRoot,
		Runs:       []statusRun{},
	}

	out.Watcher.PID, out.Watcher.Running = runningWatcher(cfg.LocalRoot)

	if !cfg.Journal.Enabled {
		return printStatus(cc, os.Stdout, &out)
	}

	out.Journal = cfg.JournalPath

	j, err := journal.Open(cmd.Context(), cfg.JournalPath, cc.Logger)
	if err != nil {
		return err
	}
	defer j.Close()

	if runID != "" {
		return printOperations(cmd.Context(), cc, os.Stdout, j, runID)
	}

	runs, err := j.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	for i := range runs {
		out.Runs = append(out.Runs, toStatusRun(&runs[i]))
	}

	return printStatus(cc, os.Stdout, &out)
}

func toStatusRun(r *journal.Run) statusRun {
	return statusRun{
		ID:         r.ID,
		Kind:       r.Kind,
		Root:       r.Root,
		StartedAt:  r.Started(),
		DurationMs: r.DurationMs,
		Commands:   r.Commands,
		Downloaded: r.Downloaded,
		Uploaded:   r.Uploaded,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Bytes:      r.Bytes,
		Error:      r.Error.String,
	}
}

func printStatus(cc *CLIContext, w io.Writer, out *statusOutput) error {
	if cc.Flags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Server:      %s\n", out.Server)
	fmt.Fprintf(w, "Local root:  %s\n", out.LocalRoot)
	fmt.Fprintf(w, "Remote root: %s\n", out.RemoteRoot)

	switch {
	case out.Watcher.Running && out.Watcher.PID > 0:
		fmt.Fprintf(w, "Watcher:     running (PID %d)\n", out.Watcher.PID)
	case out.Watcher.Running:
		fmt.Fprintln(w, "Watcher:     running")
	default:
		fmt.Fprintln(w, "Watcher:     not running")
	}

	if out.Journal == "" {
		fmt.Fprintln(w, "Journal:     disabled")
		return nil
	}

	fmt.Fprintf(w, "Journal:     %s\n\n", out.Journal)

	if len(out.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(out.Runs))

	for i := range out.Runs {
		r := &out.Runs[i]

		result := "ok"
		if r.Failed > 0 {
			result = "failed"
		}

		rows = append(rows, []string{
			r.ID[:min(8, len(r.ID))], r.Kind, r.Root, formatTime(r.StartedAt),
			strconv.Itoa(r.Commands + r.Downloaded + r.Uploaded),
			isync.FormatBytes(r.Bytes), result,
		})
	}

	printTable(w, []string{"ID", "KIND", "ROOT", "STARTED", "FILES", "BYTES", "RESULT"}, rows)

	return nil
}

func printOperations(ctx context.Context, cc *CLIContext, w io.Writer, j *journal.Journal, runID string) error {
	ops, err := j.Operations(ctx, runID)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		type opJSON struct {
			Kind   string `json:"kind"`
			Path   string `json:"path"`
			Status string `json:"status"`
			Bytes  int64  `json:"bytes"`
			Error  string `json:"error,omitempty"`
		}

		list := make([]opJSON, 0, len(ops))
		for _, op := range ops {
			list = append(list, opJSON{op.Kind, op.Path, op.Status, op.Bytes, op.Error.String})
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(list)
	}

	if len(ops) == 0 {
		fmt.Fprintf(w, "No operations recorded for run %s.\n", runID)
		return nil
	}

	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		rows = append(rows, []string{op.Kind, op.Path, op.Status, isync.FormatBytes(op.Bytes), op.Error.String})
	}

	printTable(w, []string{"KIND", "PATH", "STATUS", "BYTES", "ERROR"}, rows)

	return nil
}
