// Package local implements a local filesystem shard store.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// Config captures the parameters for the local filesystem shard store.
type Config struct {
	// BaseDir is the directory that shard paths are resolved against.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ShardStore reads crawl logs from the local filesystem.
type ShardStore struct {
	baseDir string
}

var _ docs.ShardStore = (*ShardStore)(nil)

// New creates a local shard store. BaseDir must be an existing directory.
func New(cfg Config) (*ShardStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &ShardStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// List implements docs.ShardStore.
func (s *ShardStore) List(ctx context.Context, parent string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", parent, err)
	}
	dir, err := s.resolve(parent)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", parent, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open implements docs.ShardStore.
func (s *ShardStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full) //nolint:gosec // path is checked against baseDir
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func (s *ShardStore) resolve(path string) (string, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))
	if full != s.baseDir && !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
