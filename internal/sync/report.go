package sync

import (
	"time"
)

// OpStatus is the result of one executed operation.
type OpStatus string

// Operation statuses as stored by reporters.
const (
	OpDone    OpStatus = "done"
	OpAbsent  OpStatus = "absent"
	OpSkipped OpStatus = "skipped"
	OpFailed  OpStatus = "failed"
)

// OpResult records the result of one Command inside a batch.
type OpResult struct {
	Command Command
	Status  OpStatus
	Bytes   int64
	Err     error
}

// BatchReport summarizes one drained batch. Results holds one entry per
// snapshot command, in execution order; commands not reached after a
// failure are recorded as OpSkipped.
type BatchReport struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Results   []OpResult
	Err       error
}

// Executed returns the commands that ran to completion (done or absent).
func (r *BatchReport) Executed() []Command {
	var out []Command

	for _, res := range r.Results {
		if res.Status == OpDone || res.Status == OpAbsent {
			out = append(out, res.Command)
		}
	}

	return out
}

// Count returns the number of results with the given status.
func (r *BatchReport) Count(status OpStatus) int {
	n := 0

	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}

	return n
}

// Bytes returns the total bytes uploaded by the batch.
func (r *BatchReport) Bytes() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Bytes
	}

	return n
}

// TreeOp names a bulk operation.
type TreeOp string

// Bulk operations.
const (
	TreePull TreeOp = "pull"
	TreePush TreeOp = "push"
	TreePut  TreeOp = "put"
)

// TreeReport summarizes one bulk pull, bulk push or single-file put.
type TreeReport struct {
	ID         string
	Op         TreeOp
	Root       string
	StartedAt  time.Time
	Duration   time.Duration
	Downloaded int
	Uploaded   int
	Skipped    int
	Dirs       int
	Bytes      int64
	Err        error
}

// Reporter receives completed batches and bulk operations, e.g. to persist
// or export them. Implementations must not block for long; they run on the
// engine's goroutine.
type Reporter interface {
	BatchDone(report *BatchReport)
	TreeDone(report *TreeReport)
}
