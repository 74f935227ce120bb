// Package journal records completed sync runs in a SQLite database: every
// drained queue batch, bulk pull, bulk push and single-file put, with one
// row per executed operation for batches.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/ftpsync/internal/sync"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// reportTimeout bounds a Reporter write so a slow disk cannot stall the
// queue's goroutine indefinitely.
const reportTimeout = 10 * time.Second

const (
	sqlInsertRun = `INSERT INTO runs
		(id, kind, root, started_at, duration_ms, commands, failed,
		 downloaded, uploaded, skipped, bytes, error)
		VALUES (:id, :kind, :root, :started_at, :duration_ms, :commands, :failed,
		 :downloaded, :uploaded, :skipped, :bytes, :error)`

	sqlInsertOperation = `INSERT INTO operations
		(run_id, seq, kind, path, status, bytes, error)
		VALUES (:run_id, :seq, :kind, :path, :status, :bytes, :error)`

	sqlRecentRuns = `SELECT id, kind, root, started_at, duration_ms, commands, failed,
		downloaded, uploaded, skipped, bytes, error
		FROM runs ORDER BY started_at DESC, id LIMIT ?`

	sqlRunOperations = `SELECT run_id, seq, kind, path, status, bytes, error
		FROM operations WHERE run_id = ? ORDER BY seq`
)

// Run is one journaled batch or bulk operation.
type Run struct {
	ID         string         `db:"id"`
	Kind       string         `db:"kind"`
	Root       string         `db:"root"`
	StartedAt  int64          `db:"started_at"` // Unix nanoseconds
	DurationMs int64          `db:"duration_ms"`
	Commands   int            `db:"commands"`
	Failed     int            `db:"failed"`
	Downloaded int            `db:"downloaded"`
	Uploaded   int            `db:"uploaded"`
	Skipped    int            `db:"skipped"`
	Bytes      int64          `db:"bytes"`
	Error      sql.NullString `db:"error"`
}

// Started returns StartedAt as a time.Time.
func (r *Run) Started() time.Time {
	return time.Unix(0, r.StartedAt)
}

// Duration returns the run duration.
func (r *Run) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Operation is one command executed inside a journaled batch.
type Operation struct {
	RunID  string         `db:"run_id"`
	Seq    int            `db:"seq"`
	Kind   string         `db:"kind"`
	Path   string         `db:"path"`
	Status string         `db:"status"`
	Bytes  int64          `db:"bytes"`
	Error  sql.NullString `db:"error"`
}

// Journal is the sole writer to the journal database. It implements
// sync.Reporter.
type Journal struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ sync.Reporter = (*Journal)(nil)

// Open opens (creating if needed) the journal database at dbPath and applies
// pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db.DB, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", dbPath))

	return &Journal{db: db, logger: logger}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BatchDone journals a drained batch. Errors are logged, not returned.
func (j *Journal) BatchDone(report *sync.BatchReport) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if err := j.RecordBatch(ctx, report); err != nil {
		j.logger.Warn("journal write failed",
			slog.String("run_id", report.ID), slog.String("error", err.Error()))
	}
}

// TreeDone journals a bulk operation. Errors are logged, not returned.
func (j *Journal) TreeDone(report *sync.TreeReport) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if err := j.RecordTree(ctx, report); err != nil {
		j.logger.Warn("journal write failed",
			slog.String("run_id", report.ID), slog.String("error", err.Error()))
	}
}

// RecordBatch writes the run row and one operation row per result in a
// single transaction.
func (j *Journal) RecordBatch(ctx context.Context, report *sync.BatchReport) error {
	run := Run{
		ID:         report.ID,
		Kind:       "batch",
		StartedAt:  report.StartedAt.UnixNano(),
		DurationMs: report.Duration.Milliseconds(),
		Commands:   len(report.Results),
		Failed:     report.Count(sync.OpFailed),
		Uploaded:   countUploads(report),
		Skipped:    report.Count(sync.OpSkipped),
		Bytes:      report.Bytes(),
		Error:      nullError(report.Err),
	}

	ops := make([]Operation, 0, len(report.Results))
	for i := range report.Results {
		res := &report.Results[i]
		ops = append(ops, Operation{
			RunID:  report.ID,
			Seq:    i,
			Kind:   res.Command.Kind.String(),
			Path:   res.Command.Path,
			Status: string(res.Status),
			Bytes:  res.Bytes,
			Error:  nullError(res.Err),
		})
	}

	return j.insert(ctx, &run, ops)
}

// RecordTree writes the run row of a bulk pull, push or put.
func (j *Journal) RecordTree(ctx context.Context, report *sync.TreeReport) error {
	run := Run{
		ID:         report.ID,
		Kind:       string(report.Op),
		Root:       report.Root,
		StartedAt:  report.StartedAt.UnixNano(),
		DurationMs: report.Duration.Milliseconds(),
		Downloaded: report.Downloaded,
		Uploaded:   report.Uploaded,
		Skipped:    report.Skipped,
		Bytes:      report.Bytes,
		Error:      nullError(report.Err),
	}

	if report.Err != nil {
		run.Failed = 1
	}

	return j.insert(ctx, &run, nil)
}

func (j *Journal) insert(ctx context.Context, run *Run, ops []Operation) (err error) {
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: beginning transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if _, err = tx.NamedExecContext(ctx, sqlInsertRun, run); err != nil {
		return fmt.Errorf("journal: inserting run %s: %w", run.ID, err)
	}

	for i := range ops {
		if _, err = tx.NamedExecContext(ctx, sqlInsertOperation, &ops[i]); err != nil {
			return fmt.Errorf("journal: inserting operation %d of run %s: %w", ops[i].Seq, run.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("journal: committing run %s: %w", run.ID, err)
	}

	return nil
}

// Recent returns up to n runs, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Run, error) {
	var runs []Run
	if err := j.db.SelectContext(ctx, &runs, sqlRecentRuns, n); err != nil {
		return nil, fmt.Errorf("journal: querying recent runs: %w", err)
	}

	return runs, nil
}

// Operations returns the operations of one batch run in execution order.
func (j *Journal) Operations(ctx context.Context, runID string) ([]Operation, error) {
	var ops []Operation
	if err := j.db.SelectContext(ctx, &ops, sqlRunOperations, runID); err != nil {
		return nil, fmt.Errorf("journal: querying operations of run %s: %w", runID, err)
	}

	return ops, nil
}

func countUploads(report *sync.BatchReport) int {
	n := 0

	for _, res := range report.Results {
		if res.Command.Kind == sync.CommandPut && res.Status == sync.OpDone {
			n++
		}
	}

	return n
}

func nullError(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: err.Error(), Valid: true}
}
