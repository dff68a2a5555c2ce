// Package watch builds the set of SURT prefixes covered by watched targets.
package watch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/surt"
)

// Index is an immutable set of SURT prefixes. It is safe for concurrent reads.
type Index struct {
	prefixes []string
}

// NewIndex builds an Index from already-canonical prefixes.
func NewIndex(prefixes ...string) *Index {
	set := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return &Index{prefixes: out}
}

// Len returns the number of distinct prefixes.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.prefixes)
}

// Prefixes returns a copy of the prefixes in sorted order.
func (i *Index) Prefixes() []string {
	if i == nil {
		return nil
	}
	return append([]string(nil), i.prefixes...)
}

// Contains reports whether p is one of the indexed prefixes.
func (i *Index) Contains(p string) bool {
	if i == nil {
		return false
	}
	n := sort.SearchStrings(i.prefixes, p)
	return n < len(i.prefixes) && i.prefixes[n] == p
}

// SharedPrefix returns the first indexed prefix that both SURTs start with.
func (i *Index) SharedPrefix(a, b string) (string, bool) {
	if i == nil {
		return "", false
	}
	for _, p := range i.prefixes {
		if strings.HasPrefix(a, p) && strings.HasPrefix(b, p) {
			return p, true
		}
	}
	return "", false
}

// Snapshot is the target feed as loaded for one scan, plus the index derived
// from it. Both are read-only once built.
type Snapshot struct {
	Targets []docs.Target
	Index   *Index
}

// Target looks up a target by ID.
func (s *Snapshot) Target(id int64) (docs.Target, bool) {
	if s == nil {
		return docs.Target{}, false
	}
	for _, t := range s.Targets {
		if t.ID == id {
			return t, true
		}
	}
	return docs.Target{}, false
}

// Build loads the feed and indexes the seeds of every watched target. A feed
// failure aborts with docs.ErrFeedUnavailable; an empty feed is not an error.
func Build(ctx context.Context, feed docs.TargetFeed, logger *zap.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if feed == nil {
		return nil, fmt.Errorf("%w: no feed configured", docs.ErrFeedUnavailable)
	}
	targets, err := feed.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", docs.ErrFeedUnavailable, err)
	}
	idx := FromTargets(targets, logger)
	logger.Info("watched index built",
		zap.Int("targets", len(targets)),
		zap.Int("prefixes", idx.Len()),
	)
	return &Snapshot{Targets: targets, Index: idx}, nil
}

// FromTargets canonicalizes the seeds of watched targets into an Index.
// Seeds that cannot be canonicalized are skipped.
func FromTargets(targets []docs.Target, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	var prefixes []string
	for _, t := range targets {
		if !t.Watched {
			continue
		}
		for _, seed := range t.Seeds {
			p, err := surt.FromURL(seed)
			if err != nil {
				logger.Warn("skipping watched seed", zap.Int64("target_id", t.ID), zap.String("seed", seed), zap.Error(err))
				continue
			}
			prefixes = append(prefixes, p)
		}
	}
	return NewIndex(prefixes...)
}
