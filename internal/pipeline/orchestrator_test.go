package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/crawllog"
	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/enrich"
	"github.com/JakeFAU/docwatch/internal/progress"
	"github.com/JakeFAU/docwatch/internal/publish"
	"github.com/JakeFAU/docwatch/internal/recordstore/memory"
	"github.com/JakeFAU/docwatch/internal/storage/local"
)

const (
	job    = "weekly"
	launch = "20240101000000"
)

func logLine(status, length, url, via, source string) string {
	return strings.Join([]string{
		"2024-01-01T00:00:01.000Z", status, length, url, "LLE", via, "application/pdf",
		"#001", "20240101000001123+45", "sha1:44KA4PQA5TYRAXDIVJIAFD72RN55OQHJ", source, "-",
	}, "  ") + "\n"
}

func launchLog() string {
	return logLine("200", "100", "http://example.com/a.pdf", "http://example.com/", "tid:42:http://example.com/") +
		logLine("404", "100", "http://example.com/missing.pdf", "http://example.com/", "-") +
		logLine("200", "n/a", "http://example.com/broken.pdf", "http://example.com/", "-") +
		logLine("200", "100", "http://example.com/b.pdf", "http://example.com/docs", "-") +
		logLine("200", "100", "http://example.com/c.draft.pdf", "http://example.com/", "-") +
		logLine("200", "100", "http://other.org/d.pdf", "http://other.org/", "-")
}

func writeLaunch(t *testing.T, root, jobName, launchID, body string) {
	t.Helper()
	dir := filepath.Join(root, jobName, launchID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crawl.log"), []byte(body), 0o600))
}

type staticFeed struct {
	targets []docs.Target
	err     error
}

func (f staticFeed) Load(context.Context) ([]docs.Target, error) {
	return f.targets, f.err
}

var targets = []docs.Target{
	{ID: 42, Title: "Example", Watched: true, Seeds: []string{"http://example.com/"}},
	{ID: 7, Title: "Other", Watched: false, Seeds: []string{"http://other.org/"}},
}

type countingCatalog struct {
	mu    sync.Mutex
	urls  []string
	fail  map[string]bool
	calls int
}

func (c *countingCatalog) Submit(_ context.Context, doc docs.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail[doc.DocumentURL] {
		return &docs.SubmitError{StatusCode: 503, Reason: "Service Unavailable"}
	}
	c.urls = append(c.urls, doc.DocumentURL)
	return nil
}

func (c *countingCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type mapResolver map[string]docs.Availability

func (m mapResolver) Resolve(_ context.Context, url, _ string) docs.Availability {
	return m[url]
}

type fixture struct {
	root    string
	store   *memory.Store
	catalog *countingCatalog
	deps    Deps
}

func newFixture(t *testing.T, feed docs.TargetFeed) *fixture {
	t.Helper()
	root := t.TempDir()
	shards, err := local.New(local.Config{BaseDir: root})
	require.NoError(t, err)
	policy, err := enrich.NewScopePolicy([]string{`\.draft\.pdf$`})
	require.NoError(t, err)

	f := &fixture{root: root, store: memory.New(), catalog: &countingCatalog{}}
	f.deps = Deps{
		Feed:      feed,
		Shards:    shards,
		Scanner:   crawllog.NewScanner(shards, crawllog.Config{}, zap.NewNop()),
		Enricher:  enrich.NewGate(policy, zap.NewNop()),
		Publisher: publish.New(f.store, f.catalog),
	}
	return f
}

func TestRunPublishesOncePerDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, launch, launchLog())
	o := New(f.deps, Config{Workers: 3}, zap.NewNop())

	first, err := o.Run(context.Background(), job, launch)
	require.NoError(t, err)
	assert.Equal(t, 6, first.Scanned)
	assert.Equal(t, 1, first.ParseErrors)
	assert.Equal(t, 3, first.Matched)
	assert.Equal(t, 2, first.Accepted)
	assert.Equal(t, 1, first.Rejected)
	assert.Equal(t, 1, first.Shards)
	assert.NotEmpty(t, first.Fingerprint)
	assert.NotEmpty(t, first.RunID)
	assert.True(t, first.Complete())
	require.NoError(t, first.Err())
	assert.Equal(t, 2, f.catalog.count())
	assert.Equal(t, 3, f.store.Len())

	second, err := o.Run(context.Background(), job, launch)
	require.NoError(t, err)
	assert.Equal(t, 3, second.AlreadyPublished)
	assert.Zero(t, second.Accepted+second.Rejected)
	assert.Equal(t, 2, f.catalog.count(), "re-run must not submit again")
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunEmptyFeedMatchesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{})
	writeLaunch(t, f.root, job, launch, launchLog())

	res, err := New(f.deps, Config{}, nil).Run(context.Background(), job, launch)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Scanned)
	assert.Zero(t, res.Matched)
	assert.Zero(t, f.catalog.count())
	assert.True(t, res.Complete())
}

func TestRunFeedUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{err: errors.New("connection refused")})
	writeLaunch(t, f.root, job, launch, launchLog())

	_, err := New(f.deps, Config{}, nil).Run(context.Background(), job, launch)
	require.ErrorIs(t, err, docs.ErrFeedUnavailable)
	assert.Zero(t, f.store.Len())
}

func TestRunMissingLaunch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	_, err := New(f.deps, Config{}, nil).Run(context.Background(), job, launch)
	require.Error(t, err)
}

func TestRunPendingUntilAvailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, launch, launchLog())
	resolver := mapResolver{
		"http://example.com/a.pdf":       {Known: true, Available: true},
		"http://example.com/b.pdf":       {Known: true, Available: false},
		"http://example.com/c.draft.pdf": {Known: true, Available: true},
	}
	f.deps.Resolver = resolver
	o := New(f.deps, Config{Workers: 2, RequireAvailability: true}, nil)

	res, err := o.Run(context.Background(), job, launch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pending)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	assert.False(t, res.Complete())
	require.ErrorIs(t, res.Err(), ErrIncomplete)
	assert.Equal(t, 2, f.store.Len(), "pending documents get no record")

	resolver["http://example.com/b.pdf"] = docs.Availability{Known: true, Available: true}
	res, err = o.Run(context.Background(), job, launch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 2, res.AlreadyPublished)
	assert.True(t, res.Complete())
	assert.Equal(t, 2, f.catalog.count())
}

func TestRunCountsPublishFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	f.catalog.fail = map[string]bool{"http://example.com/a.pdf": true}
	writeLaunch(t, f.root, job, launch, launchLog())
	o := New(f.deps, Config{Workers: 2}, nil)

	res, err := o.Run(context.Background(), job, launch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Accepted)
	require.ErrorIs(t, res.Err(), ErrIncomplete)

	f.catalog.mu.Lock()
	f.catalog.fail = nil
	f.catalog.mu.Unlock()
	res, err = o.Run(context.Background(), job, launch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.True(t, res.Complete())
}

func TestRunWritesCandidatesAndReplay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, launch, launchLog())
	o := New(f.deps, Config{Workers: 2}, nil)

	var buf bytes.Buffer
	cw := docs.NewCandidateWriter(&buf)
	res, err := o.Run(context.Background(), job, launch, WithCandidates(cw))
	require.NoError(t, err)
	assert.Equal(t, res.Matched, cw.Count())
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	replayStore := memory.New()
	replayCatalog := &countingCatalog{}
	deps := f.deps
	deps.Publisher = publish.New(replayStore, replayCatalog)
	replayed, err := New(deps, Config{Workers: 2}, nil).Replay(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, replayed.Matched)
	assert.Equal(t, 2, replayed.Accepted)
	assert.Equal(t, 1, replayed.Rejected)
	assert.Equal(t, 2, replayCatalog.count())
	assert.Empty(t, replayed.Job)
}

func TestReplaySkipsMalformedCandidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, launch, launchLog())
	var buf bytes.Buffer
	cw := docs.NewCandidateWriter(&buf)
	_, err := New(f.deps, Config{Workers: 2}, nil).Run(context.Background(), job, launch, WithCandidates(cw))
	require.NoError(t, err)
	require.NoError(t, cw.Flush())

	input := "garbage-without-tab\n" + buf.String() + "http://example.com/z.pdf\t{broken\n"

	replayCatalog := &countingCatalog{}
	deps := f.deps
	deps.Publisher = publish.New(memory.New(), replayCatalog)
	replayed, err := New(deps, Config{Workers: 2}, nil).Replay(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, replayed.ParseErrors)
	assert.Equal(t, 3, replayed.Matched)
	assert.Equal(t, 2, replayed.Accepted)
	assert.Equal(t, 1, replayed.Rejected)
	assert.Equal(t, 2, replayCatalog.count())
	assert.True(t, replayed.Complete())
}

func TestRunAllProcessesEveryLaunch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, "20240101000000", launchLog())
	writeLaunch(t, f.root, job, "20240108000000",
		logLine("200", "1", "http://example.com/e.pdf", "http://example.com/", "-"))
	writeLaunch(t, f.root, "monthly", "20240115000000",
		logLine("200", "1", "http://example.com/a.pdf", "http://example.com/", "-"))
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, job, "not-a-launch"), 0o755))

	o := New(f.deps, Config{Workers: 2, LaunchConcurrency: 2}, nil)
	results, err := o.RunAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "monthly", results[0].Job)
	assert.Equal(t, "20240101000000", results[1].Launch)
	assert.Equal(t, "20240108000000", results[2].Launch)

	total := Result{}
	for _, r := range results {
		total.Accepted += r.Accepted
		total.AlreadyPublished += r.AlreadyPublished
		assert.True(t, r.Complete())
	}
	assert.Equal(t, 3, total.Accepted)
	assert.Equal(t, 1, total.AlreadyPublished, "a.pdf appears in two launches")
	assert.Equal(t, 3, f.catalog.count())
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, launch, launchLog())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(f.deps, Config{}, nil).Run(ctx, job, launch)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Matched)
	assert.Zero(t, f.store.Len())
}

func TestResultErr(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Result{Accepted: 3}.Err())
	err := Result{Job: "j", Launch: "l", Failed: 1}.Err()
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "j/l has 1 failed and 0 pending")
}

func TestRunWithRunID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, launch, launchLog())

	res, err := New(f.deps, Config{}, nil).Run(context.Background(), job, launch, WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func TestRunEmitsProgress(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{targets: targets})
	writeLaunch(t, f.root, job, launch, launchLog())
	em := &recordingEmitter{}

	res, err := New(f.deps, Config{Workers: 2}, nil).Run(context.Background(), job, launch,
		WithRunID("run-1"), WithEmitter(em))
	require.NoError(t, err)

	require.Len(t, em.events, 2+res.Matched)
	assert.Equal(t, progress.StageRunStart, em.events[0].Stage)
	assert.Equal(t, progress.StageRunDone, em.events[len(em.events)-1].Stage)
	outcomes := map[string]int{}
	for _, evt := range em.events {
		assert.Equal(t, "run-1", evt.RunID)
		assert.NoError(t, evt.Validate())
		if evt.Stage == progress.StageDocument {
			outcomes[evt.Outcome]++
		}
	}
	assert.Equal(t, map[string]int{"accepted": 2, "rejected": 1}, outcomes)
}

func TestRunEmitsErrorWhenFeedUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, staticFeed{err: errors.New("connection refused")})
	em := &recordingEmitter{}

	res, err := New(f.deps, Config{}, nil).Run(context.Background(), job, launch, WithEmitter(em))
	require.Error(t, err)
	require.Len(t, em.events, 1)
	assert.Equal(t, progress.StageRunError, em.events[0].Stage)
	assert.Equal(t, res.RunID, em.events[0].RunID)
	assert.Contains(t, em.events[0].Note, "target feed unavailable")
}
