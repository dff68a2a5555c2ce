package pipeline

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/docwatch/internal/worker"
)

// ErrIncomplete marks a run that left failed or pending documents behind.
// The scheduler should invoke the launch again.
var ErrIncomplete = errors.New("launch incomplete")

// Result aggregates the counts of one run.
type Result struct {
	RunID       string `json:"run_id"`
	Job         string `json:"job,omitempty"`
	Launch      string `json:"launch,omitempty"`
	Shards      int    `json:"shards"`
	Fingerprint string `json:"fingerprint,omitempty"`

	Scanned          int `json:"scanned"`
	ParseErrors      int `json:"parse_errors"`
	Matched          int `json:"matched"`
	Accepted         int `json:"accepted"`
	Rejected         int `json:"rejected"`
	AlreadyPublished int `json:"already_published"`
	Pending          int `json:"pending"`
	Failed           int `json:"failed"`
}

// Complete reports whether every matched document reached a terminal record.
func (r Result) Complete() bool {
	return r.Failed == 0 && r.Pending == 0
}

// Err returns ErrIncomplete, with the counts, when the run is not complete.
func (r Result) Err() error {
	if r.Complete() {
		return nil
	}
	return fmt.Errorf("%w: %s/%s has %d failed and %d pending documents",
		ErrIncomplete, r.Job, r.Launch, r.Failed, r.Pending)
}

// Handled is the number of candidates the workers reported on.
func (r Result) Handled() int {
	return r.Accepted + r.Rejected + r.AlreadyPublished + r.Pending + r.Failed
}

// Add counts one document outcome. Unknown outcomes count as failed.
func (r *Result) Add(o worker.Outcome) {
	switch o {
	case worker.OutcomeAccepted:
		r.Accepted++
	case worker.OutcomeRejected:
		r.Rejected++
	case worker.OutcomeAlreadyPublished:
		r.AlreadyPublished++
	case worker.OutcomePending:
		r.Pending++
	default:
		r.Failed++
	}
}
