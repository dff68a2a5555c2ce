package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docwatch/internal/docs"
)

func TestStoreCreateIfAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	key := docs.PublishKey{Host: "www.gov.uk", Hash: "abc"}

	_, err := s.Get(ctx, key)
	require.ErrorIs(t, err, docs.ErrRecordNotFound)

	first := docs.PublishRecord{Key: key, Outcome: docs.StatusAccepted}
	require.NoError(t, s.Create(ctx, first))
	err = s.Create(ctx, docs.PublishRecord{Key: key, Outcome: docs.StatusRejected})
	require.ErrorIs(t, err, docs.ErrRecordExists)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, docs.StatusAccepted, got.Outcome)
	require.Equal(t, 1, s.Len())
	require.Len(t, s.Records(), 1)
}

func TestStoreConcurrentCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	key := docs.PublishKey{Host: "h", Hash: "k"}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Create(ctx, docs.PublishRecord{Key: key}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
