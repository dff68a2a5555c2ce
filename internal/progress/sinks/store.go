package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/pipeline"
	"github.com/JakeFAU/docwatch/internal/progress"
	"github.com/JakeFAU/docwatch/internal/store"
	"github.com/JakeFAU/docwatch/internal/worker"
)

// RunSink folds document events into running counts in a
// store.RunRepository. Each batch costs one write per run it mentions.
type RunSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewRunSink constructs a RunSink for the provided repository.
func NewRunSink(repo store.RunRepository, logger *zap.Logger) *RunSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunSink{repo: repo, logger: logger}
}

// Consume implements progress.Sink. Runs unknown to the repository, such as
// CLI runs, are skipped.
func (s *RunSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[string]*pipeline.Result)
	var order []string
	for _, evt := range batch {
		if evt.Stage != progress.StageDocument {
			continue
		}
		d, ok := deltas[evt.RunID]
		if !ok {
			d = &pipeline.Result{}
			deltas[evt.RunID] = d
			order = append(order, evt.RunID)
		}
		d.Add(worker.Outcome(evt.Outcome))
	}

	for _, runID := range order {
		err := s.repo.Progress(ctx, runID, *deltas[runID])
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.logger.Debug("progress for unknown run", zap.String("run_id", runID))
		case err != nil:
			return fmt.Errorf("record progress for %s: %w", runID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *RunSink) Close(context.Context) error {
	return nil
}
