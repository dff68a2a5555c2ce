// Package pipeline runs a launch end to end: build the watched index, scan the
// crawl log, then check, enrich and publish every candidate on a bounded
// worker pool.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/docwatch/internal/crawllog"
	"github.com/JakeFAU/docwatch/internal/dispatcher"
	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/id"
	"github.com/JakeFAU/docwatch/internal/metrics"
	"github.com/JakeFAU/docwatch/internal/progress"
	"github.com/JakeFAU/docwatch/internal/queue/memory"
	"github.com/JakeFAU/docwatch/internal/watch"
	"github.com/JakeFAU/docwatch/internal/worker"
)

// Config controls the worker pool and launch fan-out.
type Config struct {
	Workers             int
	QueueSize           int
	RequireAvailability bool
	LaunchConcurrency   int
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Feed      docs.TargetFeed
	Shards    docs.ShardStore
	Scanner   *crawllog.Scanner
	Resolver  docs.AvailabilityResolver
	Enricher  worker.Enricher
	Publisher worker.Publisher
}

// Orchestrator coordinates one or more launch runs. It holds no per-run state.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	newID  func() string
}

// RunOption customizes a single run.
type RunOption func(*runOptions)

type runOptions struct {
	candidates *docs.CandidateWriter
	runID      string
	emitter    progress.Emitter
}

func (ro runOptions) emit(evt progress.Event) {
	if ro.emitter == nil {
		return
	}
	evt.RunID = ro.runID
	evt.TS = time.Now().UTC()
	ro.emitter.Emit(evt)
}

// WithRunID sets the run identifier instead of generating a UUIDv7.
func WithRunID(runID string) RunOption {
	return func(o *runOptions) {
		o.runID = runID
	}
}

// WithCandidates also writes every matched candidate to w in the
// intermediate format.
func WithCandidates(w *docs.CandidateWriter) RunOption {
	return func(o *runOptions) {
		o.candidates = w
	}
}

// WithEmitter streams run lifecycle and per-document outcome events to e.
func WithEmitter(e progress.Emitter) RunOption {
	return func(o *runOptions) {
		o.emitter = e
	}
}

func (o *Orchestrator) runOptions(opts []RunOption) runOptions {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.runID == "" {
		ro.runID = o.newID()
	}
	return ro
}

// New builds an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.LaunchConcurrency <= 0 {
		cfg.LaunchConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("pipeline"),
		newID:  id.New,
	}
}

// Run processes one launch. The returned error is reserved for failures that
// abort the scan, such as an unavailable feed or unreadable shard; document
// level failures are counted in the Result instead.
func (o *Orchestrator) Run(ctx context.Context, job, launch string, opts ...RunOption) (Result, error) {
	ro := o.runOptions(opts)
	snap, err := watch.Build(ctx, o.deps.Feed, o.logger)
	if err != nil {
		err = fmt.Errorf("build watched index: %w", err)
		ro.emit(progress.Event{Stage: progress.StageRunError, Job: job, Launch: launch, Note: err.Error()})
		return Result{RunID: ro.runID, Job: job, Launch: launch}, err
	}
	return o.runLaunch(ctx, snap, job, launch, ro)
}

// RunAll processes every launch below root, sharing one watched index, with
// at most LaunchConcurrency launches in flight. Results are in listing order.
func (o *Orchestrator) RunAll(ctx context.Context, root string) ([]Result, error) {
	launches, err := crawllog.ListLaunches(ctx, o.deps.Shards, root)
	if err != nil {
		return nil, err
	}
	snap, err := watch.Build(ctx, o.deps.Feed, o.logger)
	if err != nil {
		return nil, fmt.Errorf("build watched index: %w", err)
	}
	o.logger.Info("running launches", zap.Int("launches", len(launches)), zap.Int("concurrency", o.cfg.LaunchConcurrency))

	results := make([]Result, len(launches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.LaunchConcurrency)
	for i, l := range launches {
		g.Go(func() error {
			res, err := o.runLaunch(gctx, snap, l.Job, l.ID, o.runOptions(nil))
			results[i] = res
			if err != nil {
				return fmt.Errorf("launch %s/%s: %w", l.Job, l.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err //nolint:wrapcheck // wrapped per launch
	}
	return results, nil
}

// Replay runs candidates previously written with WithCandidates through the
// worker pool without scanning any crawl log.
func (o *Orchestrator) Replay(ctx context.Context, r io.Reader) (Result, error) {
	snap, err := watch.Build(ctx, o.deps.Feed, o.logger)
	if err != nil {
		return Result{}, fmt.Errorf("build watched index: %w", err)
	}
	res := Result{RunID: o.newID()}
	logger := o.logger.With(zap.String("run_id", res.RunID))
	logger.Info("replaying candidates")

	parseErrors := 0
	res, err = o.process(ctx, snap, res, logger, nil, func(submit func(docs.Candidate) bool) error {
		return docs.ReadCandidates(r, func(c docs.Candidate) bool {
			return submit(c)
		}, func(perr *docs.ParseError) {
			parseErrors++
			metrics.ObserveLogLine("parse_error")
			logger.Warn("skipping malformed candidate", zap.Int("line", perr.Line), zap.Error(perr))
		})
	})
	res.ParseErrors = parseErrors
	return res, err
}

func (o *Orchestrator) runLaunch(
	ctx context.Context,
	snap *watch.Snapshot,
	job, launch string,
	ro runOptions,
) (Result, error) {
	res := Result{RunID: ro.runID, Job: job, Launch: launch}
	logger := o.logger.With(
		zap.String("run_id", res.RunID),
		zap.String("job", job),
		zap.String("launch", launch),
	)

	ro.emit(progress.Event{Stage: progress.StageRunStart, Job: job, Launch: launch})
	observe := func(r worker.Result) {
		evt := progress.Event{
			Stage:       progress.StageDocument,
			Job:         job,
			Launch:      launch,
			DocumentURL: r.Candidate.DocumentURL,
			Outcome:     string(r.Outcome),
		}
		if r.Err != nil {
			evt.Note = r.Err.Error()
		}
		ro.emit(evt)
	}

	var (
		stats    crawllog.Stats
		writeErr error
	)
	res, err := o.process(ctx, snap, res, logger, observe, func(submit func(docs.Candidate) bool) error {
		var scanErr error
		stats, scanErr = o.deps.Scanner.Scan(ctx, job, launch, snap.Index, func(c docs.Candidate) bool {
			if ro.candidates != nil {
				if err := ro.candidates.Write(c); err != nil {
					writeErr = err
					return false
				}
			}
			return submit(c)
		})
		return scanErr
	})
	res.Shards = len(stats.Shards)
	res.Fingerprint = stats.Shards.Fingerprint()
	res.Scanned = stats.Lines
	res.ParseErrors = stats.ParseErrors
	if err == nil && writeErr != nil {
		err = writeErr
	}
	if ro.candidates != nil {
		if ferr := ro.candidates.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}

	metrics.ObserveLaunch(err == nil && res.Complete())
	if err != nil {
		ro.emit(progress.Event{Stage: progress.StageRunError, Job: job, Launch: launch, Note: err.Error()})
	} else {
		ro.emit(progress.Event{Stage: progress.StageRunDone, Job: job, Launch: launch})
	}
	logger.Info("launch processed",
		zap.String("fingerprint", res.Fingerprint),
		zap.Int("scanned", res.Scanned),
		zap.Int("matched", res.Matched),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Int("already_published", res.AlreadyPublished),
		zap.Int("pending", res.Pending),
		zap.Int("failed", res.Failed),
		zap.Bool("complete", res.Complete()),
	)
	return res, err
}

// process starts the worker pool, lets produce feed it, and waits for every
// submitted candidate to be handled. Candidates that never reached a worker
// because the context ended are counted as pending.
func (o *Orchestrator) process(
	ctx context.Context,
	snap *watch.Snapshot,
	res Result,
	logger *zap.Logger,
	observe func(worker.Result),
	produce func(submit func(docs.Candidate) bool) error,
) (Result, error) {
	var mu sync.Mutex
	report := func(r worker.Result) {
		mu.Lock()
		defer mu.Unlock()
		res.Add(r.Outcome)
		if observe != nil {
			observe(r)
		}
	}

	q := memory.NewQueue(o.cfg.QueueSize)
	workers := make([]*worker.Worker, o.cfg.Workers)
	for i := range workers {
		workers[i] = worker.New(
			q,
			o.deps.Resolver,
			o.deps.Enricher,
			o.deps.Publisher,
			snap,
			report,
			worker.Config{RequireAvailability: o.cfg.RequireAvailability},
			logger.With(zap.Int("worker", i)),
		)
	}
	d := dispatcher.New(q, workers)
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	submitted := 0
	var enqueueErr error
	err := produce(func(c docs.Candidate) bool {
		if err := d.Enqueue(ctx, c); err != nil {
			enqueueErr = err
			return false
		}
		submitted++
		return true
	})
	d.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	res.Matched = submitted
	if lost := submitted - res.Handled(); lost > 0 {
		res.Pending += lost
	}
	if err == nil {
		err = enqueueErr
	}
	return res, err
}
