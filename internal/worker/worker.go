// Package worker implements the per-document execution loop: availability,
// enrichment, then publish.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/metrics"
	"github.com/JakeFAU/docwatch/internal/publish"
	"github.com/JakeFAU/docwatch/internal/queue"
	"github.com/JakeFAU/docwatch/internal/watch"
)

// Outcome is the terminal classification of one candidate within a run.
type Outcome string

// Worker outcomes.
const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeRejected         Outcome = "rejected"
	OutcomeAlreadyPublished Outcome = "already_published"
	OutcomePending          Outcome = "pending"
	OutcomeFailed           Outcome = "failed"
)

// Result reports what happened to one candidate.
type Result struct {
	Candidate docs.Candidate
	Outcome   Outcome
	Document  docs.Document
	Err       error
}

// Enricher classifies candidates.
type Enricher interface {
	Enrich(ctx context.Context, c docs.Candidate, targets *watch.Snapshot) docs.Document
}

// Publisher records documents at most once.
type Publisher interface {
	Publish(ctx context.Context, doc docs.Document) (publish.Outcome, error)
}

// Config controls Worker behavior.
type Config struct {
	// RequireAvailability holds back documents the wayback index cannot
	// serve yet. They are reported pending and get no record.
	RequireAvailability bool
}

// Worker consumes candidates from a queue.
type Worker struct {
	queue     queue.Queue
	resolver  docs.AvailabilityResolver
	enricher  Enricher
	publisher Publisher
	targets   *watch.Snapshot
	report    func(Result)
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. report is called once per dequeued candidate and
// must be safe for concurrent use.
func New(
	q queue.Queue,
	resolver docs.AvailabilityResolver,
	enricher Enricher,
	publisher Publisher,
	targets *watch.Snapshot,
	report func(Result),
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if report == nil {
		report = func(Result) {}
	}
	return &Worker{
		queue:     q,
		resolver:  resolver,
		enricher:  enricher,
		publisher: publisher,
		targets:   targets,
		report:    report,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming candidates until the queue is drained or the context
// finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		c, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		metrics.IncActiveWorkers()
		res := w.Process(ctx, c)
		metrics.DecActiveWorkers()
		metrics.ObserveDocument(string(res.Outcome))
		w.report(res)
	}
}

// Process runs one candidate through availability, enrichment and publish.
func (w *Worker) Process(ctx context.Context, c docs.Candidate) Result {
	log := w.logger.With(zap.String("document_url", c.DocumentURL))

	if w.cfg.RequireAvailability && w.resolver != nil {
		av := w.resolver.Resolve(ctx, c.DocumentURL, c.WaybackTimestamp)
		if !av.Available {
			log.Debug("document not yet available",
				zap.String("wayback_timestamp", c.WaybackTimestamp),
				zap.Bool("known", av.Known),
			)
			return Result{Candidate: c, Outcome: OutcomePending}
		}
	}

	doc := w.enricher.Enrich(ctx, c, w.targets)
	out, err := w.publisher.Publish(ctx, doc)
	if err != nil {
		log.Error("publish failed", zap.Error(err))
		return Result{Candidate: c, Outcome: OutcomeFailed, Document: doc, Err: err}
	}

	res := Result{Candidate: c, Document: out.Record.Document}
	switch {
	case out.Cached:
		res.Outcome = OutcomeAlreadyPublished
	case out.Status == docs.StatusAccepted:
		res.Outcome = OutcomeAccepted
	default:
		res.Outcome = OutcomeRejected
	}
	log.Debug("document handled", zap.String("outcome", string(res.Outcome)))
	return res
}
