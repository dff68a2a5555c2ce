// Package local stores publish records as JSON files on the local
// filesystem under {base}/documents/{host}/{hash}.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/recordstore"
)

// Config captures the parameters for the local record store.
type Config struct {
	// BaseDir is the root directory holding the documents/ tree.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes records to the local filesystem.
type Store struct {
	baseDir string
}

var _ docs.RecordStore = (*Store)(nil)

// New creates a local record store, creating BaseDir when missing.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Store{baseDir: cfg.BaseDir}, nil
}

// Get implements docs.RecordStore.
func (s *Store) Get(_ context.Context, key docs.PublishKey) (docs.PublishRecord, error) {
	full, err := s.path(key)
	if err != nil {
		return docs.PublishRecord{}, err
	}
	data, err := os.ReadFile(full) //nolint:gosec // path is checked against baseDir
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return docs.PublishRecord{}, docs.ErrRecordNotFound
		}
		return docs.PublishRecord{}, fmt.Errorf("read record %s: %w", key, err)
	}
	return recordstore.Unmarshal(data)
}

// Create implements docs.RecordStore. The payload is written to a temporary
// file and hard-linked into place, so a reader never sees a partial record and
// exactly one concurrent writer wins.
func (s *Store) Create(_ context.Context, rec docs.PublishRecord) error {
	full, err := s.path(rec.Key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err == nil {
		return docs.ErrRecordExists
	}
	data, err := recordstore.Marshal(rec)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Link(tmpName, full); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return docs.ErrRecordExists
		}
		return fmt.Errorf("link record %s: %w", rec.Key, err)
	}
	return nil
}

func (s *Store) path(key docs.PublishKey) (string, error) {
	if key.Host == "" || key.Hash == "" {
		return "", fmt.Errorf("incomplete publish key %q", key.String())
	}
	full := filepath.Join(s.baseDir, filepath.FromSlash(recordstore.ObjectPath(key)))

	// Hosts come from parsed URLs, but keep every record inside baseDir.
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
