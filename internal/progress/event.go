package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageDocument Stage = "DOCUMENT"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event captures a single step of a run.
type Event struct {
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS     time.Time
	Stage  Stage
	Job    string
	Launch string
	// DocumentURL and Outcome are set on document events only.
	DocumentURL string
	Outcome     string
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageDocument:
		if e.Outcome == "" {
			return errors.New("document event requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
