// Package gcs provides a shard store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// Config captures the parameters required to read shards from GCS.
type Config struct {
	Bucket string
}

// ShardStore lists and reads crawl log objects in a bucket. Object names are
// treated as slash-separated paths.
type ShardStore struct {
	client *storage.Client
	bucket string
}

var _ docs.ShardStore = (*ShardStore)(nil)

// New creates a GCS-backed shard store.
func New(client *storage.Client, cfg Config) (*ShardStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ShardStore{client: client, bucket: cfg.Bucket}, nil
}

// Connect builds a client with Application Default Credentials and fails fast
// when the bucket is not reachable.
func Connect(ctx context.Context, bucket string, logger *zap.Logger) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("failed to close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", bucket, err)
	}
	return client, nil
}

// List implements docs.ShardStore.
func (s *ShardStore) List(ctx context.Context, parent string) ([]string, error) {
	prefix := strings.Trim(parent, "/")
	if prefix != "" {
		prefix += "/"
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", s.bucket, prefix, err)
		}
		name := attrs.Name
		if name == "" {
			name = attrs.Prefix
		}
		name = strings.TrimSuffix(strings.TrimPrefix(name, prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Open implements docs.ShardStore.
func (s *ShardStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(strings.TrimPrefix(path, "/")).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, path, err)
	}
	return r, nil
}
