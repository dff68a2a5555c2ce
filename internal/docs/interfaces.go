package docs

import (
	"context"
	"io"
)

// ShardStore lists and streams crawl log shards.
type ShardStore interface {
	// List returns the names of the entries directly below parent.
	List(ctx context.Context, parent string) ([]string, error)
	// Open streams the object at path. Callers must close the reader.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// TargetFeed loads the catalog's target list.
type TargetFeed interface {
	Load(ctx context.Context) ([]Target, error)
}

// Catalog submits accepted documents to the catalog service.
type Catalog interface {
	Submit(ctx context.Context, doc Document) error
}

// RecordStore persists PublishRecords with create-if-absent semantics.
type RecordStore interface {
	// Get returns ErrRecordNotFound when no record exists for key.
	Get(ctx context.Context, key PublishKey) (PublishRecord, error)
	// Create writes rec only if no record exists for rec.Key, otherwise it
	// returns ErrRecordExists and leaves the stored record untouched.
	Create(ctx context.Context, rec PublishRecord) error
}

// Notifier publishes outcome events to a topic.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// AvailabilityResolver classifies a capture against the wayback index.
type AvailabilityResolver interface {
	Resolve(ctx context.Context, url, timestamp string) Availability
}
