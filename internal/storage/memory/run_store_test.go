package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	now := time.Now().UTC()
	run := crawler.Run{ID: "run-1", Spider: "soccer5s", Status: crawler.RunStatusRunning, StartedAt: now}

	require.NoError(t, s.StartRun(ctx, run))
	require.Error(t, s.StartRun(ctx, run), "duplicate run")

	run.Status = crawler.RunStatusFailed
	run.ErrorText = "boom"
	run.Counters.ItemsFailed = 2
	require.NoError(t, s.FinishRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, crawler.RunStatusFailed, got.Status)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, 2, got.Counters.ItemsFailed)

	failed, err := s.FailedSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, s.StartRun(ctx, crawler.Run{ID: "run-2", Spider: "geoapify", Status: crawler.RunStatusRunning, StartedAt: now.Add(time.Second)}))
	recent, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "run-2", recent[0].ID)

	pruned, err := s.PruneRuns(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned, "unfinished runs are kept")

	require.ErrorIs(t, s.FinishRun(ctx, crawler.Run{ID: "nope"}), store.ErrNotFound)
}
