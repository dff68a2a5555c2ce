package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/docwatch/internal/pipeline"
)

// DefaultMaxRuns bounds the history kept by MemoryRuns.
const DefaultMaxRuns = 500

// MemoryRuns keeps the most recent runs in memory. Once full, the oldest
// finished run is evicted on Start.
type MemoryRuns struct {
	mu   sync.RWMutex
	runs map[string]Run
	max  int
}

var _ RunRepository = (*MemoryRuns)(nil)

// NewMemoryRuns builds a repository holding at most maxRuns runs.
func NewMemoryRuns(maxRuns int) *MemoryRuns {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &MemoryRuns{runs: make(map[string]Run), max: maxRuns}
}

// Start implements RunRepository.
func (m *MemoryRuns) Start(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if len(m.runs) >= m.max {
		m.evictLocked()
	}
	run.Status = RunRunning
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryRuns) evictLocked() {
	var oldest string
	var oldestAt time.Time
	for id, r := range m.runs {
		if r.Status == RunRunning {
			continue
		}
		if oldest == "" || r.StartedAt.Before(oldestAt) {
			oldest, oldestAt = id, r.StartedAt
		}
	}
	if oldest != "" {
		delete(m.runs, oldest)
	}
}

// Progress implements RunRepository.
func (m *MemoryRuns) Progress(_ context.Context, id string, delta pipeline.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	if run.Status != RunRunning {
		return nil
	}
	r := &run.Result
	r.Scanned += delta.Scanned
	r.ParseErrors += delta.ParseErrors
	r.Matched += delta.Matched
	r.Accepted += delta.Accepted
	r.Rejected += delta.Rejected
	r.AlreadyPublished += delta.AlreadyPublished
	r.Pending += delta.Pending
	r.Failed += delta.Failed
	m.runs[id] = run
	return nil
}

// Finish implements RunRepository.
func (m *MemoryRuns) Finish(_ context.Context, id string, finishedAt time.Time, res pipeline.Result, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Result = res
	run.Status = FinalStatus(res, err)
	if err != nil {
		msg := err.Error()
		run.Error = &msg
	}
	m.runs[id] = run
	return nil
}

// Get implements RunRepository.
func (m *MemoryRuns) Get(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// List implements RunRepository.
func (m *MemoryRuns) List(_ context.Context, status *RunStatus, limit, offset int) ([]Run, error) {
	m.mu.RLock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		if status != nil && r.Status != *status {
			continue
		}
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return []Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
