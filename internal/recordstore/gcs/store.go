// Package gcs stores publish records as JSON objects in a Cloud Storage
// bucket, created with a does-not-exist precondition.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/recordstore"
)

// Config captures the bucket and object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Store implements docs.RecordStore on a GCS bucket.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

var _ docs.RecordStore = (*Store)(nil)

// New creates a GCS-backed record store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{bucket: client.Bucket(cfg.Bucket), prefix: prefix}, nil
}

func (s *Store) objectName(key docs.PublishKey) string {
	return s.prefix + recordstore.ObjectPath(key)
}

// Get implements docs.RecordStore.
func (s *Store) Get(ctx context.Context, key docs.PublishKey) (docs.PublishRecord, error) {
	r, err := s.bucket.Object(s.objectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return docs.PublishRecord{}, docs.ErrRecordNotFound
		}
		return docs.PublishRecord{}, fmt.Errorf("open record %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return docs.PublishRecord{}, fmt.Errorf("read record %s: %w", key, err)
	}
	return recordstore.Unmarshal(data)
}

// Create implements docs.RecordStore.
func (s *Store) Create(ctx context.Context, rec docs.PublishRecord) error {
	payload, err := recordstore.Marshal(rec)
	if err != nil {
		return err
	}
	obj := s.bucket.Object(s.objectName(rec.Key)).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write record %s: %w", rec.Key, err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return docs.ErrRecordExists
		}
		return fmt.Errorf("close writer for %s: %w", rec.Key, err)
	}
	return nil
}
