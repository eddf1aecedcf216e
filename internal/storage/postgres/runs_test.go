package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/store"
)

var runColumnNames = []string{
	"id", "spider", "status", "trigger", "started_at", "finished_at", "error_text",
	"items_scraped", "items_saved", "items_duplicate", "items_dropped", "items_failed",
}

func TestStartAndFinishRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	run := crawler.Run{
		ID:        "0190-run",
		Spider:    "geoapify",
		Status:    crawler.RunStatusRunning,
		Trigger:   crawler.TriggerSchedule,
		StartedAt: fixedNow,
	}
	mock.ExpectExec(`INSERT INTO scrape_runs`).
		WithArgs("0190-run", "geoapify", "running", "schedule", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run.Status = crawler.RunStatusSucceeded
	run.Counters = crawler.RunCounters{ItemsScraped: 4, ItemsSaved: 3, ItemsDuplicate: 1}
	mock.ExpectExec(`UPDATE scrape_runs SET`).
		WithArgs("succeeded", fixedNow, "", 4, 3, 1, 0, 0, "0190-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.StartRun(context.Background(), crawler.Run{
		ID: run.ID, Spider: run.Spider, Status: crawler.RunStatusRunning, Trigger: run.Trigger, StartedAt: fixedNow,
	}))
	require.NoError(t, s.FinishRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRunUnknown(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE scrape_runs SET`).WithArgs(anyArgs(9)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), crawler.Run{ID: "missing", Status: crawler.RunStatusFailed})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecentAndFailedRuns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	finished := fixedNow.Add(time.Minute)
	mock.ExpectQuery(`FROM scrape_runs ORDER BY started_at DESC LIMIT \$1`).WithArgs(20).
		WillReturnRows(pgxmock.NewRows(runColumnNames).
			AddRow("r1", "serpapi", "failed", "admin", fixedNow, &finished, "missing api key", 0, 0, 0, 0, 0))
	since := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery(`WHERE status = \$1 AND started_at >= \$2`).WithArgs("failed", since).
		WillReturnRows(pgxmock.NewRows(runColumnNames))

	runs, err := s.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, crawler.RunStatusFailed, runs[0].Status)
	require.Equal(t, crawler.TriggerAdmin, runs[0].Trigger)
	require.Equal(t, finished, *runs[0].FinishedAt)

	failed, err := s.FailedSince(context.Background(), since)
	require.NoError(t, err)
	require.Empty(t, failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneRuns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM scrape_runs WHERE started_at < \$1 AND finished_at IS NOT NULL`).
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 6))

	n, err := s.PruneRuns(context.Background(), fixedNow)
	require.NoError(t, err)
	require.Equal(t, int64(6), n)
}
