package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	isync "github.com/tonimelisma/ftpsync/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// printTreeReport prints the one-line summary of a pull, push or put.
func printTreeReport(cc *CLIContext, r *isync.TreeReport) {
	cc.Statusf("%s\n", treeSummary(r))
}

func treeSummary(r *isync.TreeReport) string {
	var parts []string

	switch r.Op {
	case isync.TreePull:
		parts = append(parts, fmt.Sprintf("%d downloaded", r.Downloaded), fmt.Sprintf("%d skipped", r.Skipped))
	case isync.TreePush:
		parts = append(parts, fmt.Sprintf("%d uploaded", r.Uploaded), fmt.Sprintf("%d skipped", r.Skipped))
	case isync.TreePut:
		parts = append(parts, fmt.Sprintf("%d uploaded", r.Uploaded))
	}

	status := "done"
	if r.Err != nil {
		status = "failed"
	}

	return fmt.Sprintf("%s %s %s: %s, %s in %s",
		r.Op, r.Root, status, strings.Join(parts, ", "),
		isync.FormatBytes(r.Bytes), formatDuration(r.Duration))
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	return d.Round(10 * time.Millisecond).String()
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04:05"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04:05")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
