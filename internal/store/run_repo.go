package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/docwatch/internal/pipeline"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus is the lifecycle state of a launch run.
type RunStatus string

// Run statuses.
const (
	RunRunning    RunStatus = "running"
	RunComplete   RunStatus = "complete"
	RunIncomplete RunStatus = "incomplete"
	RunError      RunStatus = "error"
)

// Run models one orchestrator run triggered through the API.
type Run struct {
	ID     string
	Job    string
	Launch string
	// StartedAt captures when the run was accepted.
	StartedAt time.Time
	// FinishedAt is nil until the run ends.
	FinishedAt *time.Time
	Status     RunStatus
	// Error optionally stores the failure that aborted the run.
	Error  *string
	Result pipeline.Result
}

// RunRepository records run progress.
type RunRepository interface {
	// Start inserts a running record. It fails if the ID is already used.
	Start(ctx context.Context, run Run) error
	// Progress adds outcome counts to a running run. Finished runs are left
	// untouched since Finish stores the authoritative totals.
	Progress(ctx context.Context, id string, delta pipeline.Result) error
	// Finish stores the result and derives the final status from it and err.
	Finish(ctx context.Context, id string, finishedAt time.Time, res pipeline.Result, err error) error
	// Get loads one run or returns ErrNotFound.
	Get(ctx context.Context, id string) (Run, error)
	// List returns runs, newest first, filtered by optional status.
	List(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}

// FinalStatus derives the terminal status of a run.
func FinalStatus(res pipeline.Result, err error) RunStatus {
	switch {
	case err != nil:
		return RunError
	case res.Complete():
		return RunComplete
	default:
		return RunIncomplete
	}
}
