// Package publish submits enriched documents to the catalog at most once per
// document identity.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/hash"
)

// Outcome is the result of one Publish call.
type Outcome struct {
	Status docs.Status
	// Cached is set when the record already existed, or another caller wrote
	// it, so this call made no catalog request.
	Cached bool
	Record docs.PublishRecord
}

// Event is the notification payload sent after an accepted document is
// recorded.
type Event struct {
	Key             string      `json:"key"`
	Outcome         docs.Status `json:"outcome"`
	DocumentURL     string      `json:"document_url"`
	LandingPageURL  string      `json:"landing_page_url"`
	WaybackTime     string      `json:"wayback_timestamp"`
	WatchedTargetID int64       `json:"id_watched_target,omitempty"`
	RecordedAt      time.Time   `json:"recorded_at"`
}

// Publisher deduplicates documents through a RecordStore.
type Publisher struct {
	store    docs.RecordStore
	catalog  docs.Catalog
	notifier docs.Notifier
	topic    string
	hasher   *hash.Hasher
	now      func() time.Time
	logger   *zap.Logger
	group    singleflight.Group
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithNotifier sends an Event to topic after each accepted record.
func WithNotifier(n docs.Notifier, topic string) Option {
	return func(p *Publisher) {
		p.notifier = n
		p.topic = topic
	}
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New builds a Publisher.
func New(store docs.RecordStore, catalog docs.Catalog, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		catalog: catalog,
		hasher:  hash.MD5(),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("publish")
	return p
}

// Key computes the publish key of a document URL.
func (p *Publisher) Key(documentURL string) (docs.PublishKey, error) {
	u, err := url.Parse(documentURL)
	if err != nil {
		return docs.PublishKey{}, fmt.Errorf("parse document url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return docs.PublishKey{}, fmt.Errorf("document url %q has no host", documentURL)
	}
	return docs.PublishKey{Host: host, Hash: p.hasher.HashString(documentURL)}, nil
}

// Publish records doc, submitting it to the catalog first when accepted.
// An existing record is returned unchanged without any network call.
// Catalog failures are returned as *docs.PublishError and leave no record.
func (p *Publisher) Publish(ctx context.Context, doc docs.Document) (Outcome, error) {
	key, err := p.Key(doc.DocumentURL)
	if err != nil {
		return Outcome{}, &docs.PublishError{DocumentURL: doc.DocumentURL, Reason: "invalid key", Err: err}
	}

	led := false
	v, err, _ := p.group.Do(key.String(), func() (any, error) {
		led = true
		return p.publish(ctx, key, doc)
	})
	if err != nil {
		return Outcome{}, err //nolint:wrapcheck // already wrapped by publish
	}
	out, _ := v.(Outcome)
	if !led {
		out.Cached = true
	}
	return out, nil
}

func (p *Publisher) publish(ctx context.Context, key docs.PublishKey, doc docs.Document) (Outcome, error) {
	existing, err := p.store.Get(ctx, key)
	switch {
	case err == nil:
		return Outcome{Status: existing.Outcome, Cached: true, Record: existing}, nil
	case !errors.Is(err, docs.ErrRecordNotFound):
		return Outcome{}, fmt.Errorf("lookup publish record %s: %w", key, err)
	}

	switch doc.Status {
	case docs.StatusAccepted:
		if err := p.catalog.Submit(ctx, doc); err != nil {
			return Outcome{}, publishError(doc, err)
		}
		p.logger.Info("document submitted", zap.String("document_url", doc.DocumentURL), zap.String("key", key.String()))
	case docs.StatusRejected:
	default:
		return Outcome{}, &docs.PublishError{DocumentURL: doc.DocumentURL, Reason: fmt.Sprintf("unknown status %q", doc.Status)}
	}

	rec := docs.PublishRecord{Key: key, Outcome: doc.Status, Document: doc, RecordedAt: p.now().UTC()}
	if err := p.store.Create(ctx, rec); err != nil {
		if !errors.Is(err, docs.ErrRecordExists) {
			return Outcome{}, fmt.Errorf("persist publish record %s: %w", key, err)
		}
		winner, getErr := p.store.Get(ctx, key)
		if getErr != nil {
			return Outcome{}, fmt.Errorf("reload publish record %s: %w", key, getErr)
		}
		p.logger.Warn("publish record written concurrently", zap.String("key", key.String()))
		return Outcome{Status: winner.Outcome, Cached: true, Record: winner}, nil
	}

	if rec.Outcome == docs.StatusAccepted {
		p.notify(ctx, rec)
	}
	return Outcome{Status: rec.Outcome, Record: rec}, nil
}

func (p *Publisher) notify(ctx context.Context, rec docs.PublishRecord) {
	if p.notifier == nil {
		return
	}
	ev := Event{
		Key:             rec.Key.String(),
		Outcome:         rec.Outcome,
		DocumentURL:     rec.Document.DocumentURL,
		LandingPageURL:  rec.Document.LandingPageURL,
		WaybackTime:     rec.Document.WaybackTimestamp,
		WatchedTargetID: rec.Document.WatchedTargetID,
		RecordedAt:      rec.RecordedAt,
	}
	if _, err := p.notifier.Publish(ctx, p.topic, ev); err != nil {
		p.logger.Warn("outcome notification failed", zap.String("key", ev.Key), zap.Error(err))
	}
}

func publishError(doc docs.Document, err error) *docs.PublishError {
	pe := &docs.PublishError{DocumentURL: doc.DocumentURL, Err: err}
	var submitErr *docs.SubmitError
	if errors.As(err, &submitErr) {
		pe.StatusCode = submitErr.StatusCode
		pe.Reason = submitErr.Reason
	}
	return pe
}
