package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/store"
)

const runColumns = `id, spider, status, trigger, started_at, finished_at, error_text,
	items_scraped, items_saved, items_duplicate, items_dropped, items_failed`

// StartRun inserts a run row.
func (s *Store) StartRun(ctx context.Context, run crawler.Run) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO scrape_runs (id, spider, status, trigger, started_at)
VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Spider, string(run.Status), string(run.Trigger), run.StartedAt)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status, counters and error text.
func (s *Store) FinishRun(ctx context.Context, run crawler.Run) error {
	finished := s.now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	c := run.Counters
	tag, err := s.pool.Exec(ctx, `UPDATE scrape_runs SET
	status = $1, finished_at = $2, error_text = $3,
	items_scraped = $4, items_saved = $5, items_duplicate = $6, items_dropped = $7, items_failed = $8
WHERE id = $9`,
		string(run.Status), finished, run.ErrorText,
		c.ItemsScraped, c.ItemsSaved, c.ItemsDuplicate, c.ItemsDropped, c.ItemsFailed,
		run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]crawler.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	return collectRuns(rows)
}

// FailedSince returns failed runs started at or after since.
func (s *Store) FailedSince(ctx context.Context, since time.Time) ([]crawler.Run, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+`
FROM scrape_runs WHERE status = $1 AND started_at >= $2 ORDER BY started_at DESC`,
		string(crawler.RunStatusFailed), since)
	if err != nil {
		return nil, fmt.Errorf("failed runs: %w", err)
	}
	return collectRuns(rows)
}

// PruneRuns deletes finished runs started before olderThan.
func (s *Store) PruneRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrape_runs WHERE started_at < $1 AND finished_at IS NOT NULL`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectRuns(rows pgx.Rows) ([]crawler.Run, error) {
	defer rows.Close()
	var out []crawler.Run
	for rows.Next() {
		var (
			run             crawler.Run
			status, trigger string
		)
		c := &run.Counters
		if err := rows.Scan(
			&run.ID,
			&run.Spider,
			&status,
			&trigger,
			&run.StartedAt,
			&run.FinishedAt,
			&run.ErrorText,
			&c.ItemsScraped,
			&c.ItemsSaved,
			&c.ItemsDuplicate,
			&c.ItemsDropped,
			&c.ItemsFailed,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = crawler.RunStatus(status)
		run.Trigger = crawler.Trigger(trigger)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
