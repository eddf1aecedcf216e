package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/store"
)

const activityColumns = `id, title, description, category, street_address, suburb, postcode, state,
	phone, email, website, age_range, cost, schedule, image_url, features,
	COALESCE(source_url, ''), source_name, approved, scraped_at, created_at, updated_at`

const sourceURLConstraint = "activities_source_url_key"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanActivity(row scanner) (activity.Activity, error) {
	var a activity.Activity
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.Category,
		&a.StreetAddress,
		&a.Suburb,
		&a.Postcode,
		&a.State,
		&a.Phone,
		&a.Email,
		&a.Website,
		&a.AgeRange,
		&a.Cost,
		&a.Schedule,
		&a.ImageURL,
		&a.Features,
		&a.SourceURL,
		&a.SourceName,
		&a.Approved,
		&a.ScrapedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err //nolint:wrapcheck // callers wrap with context
}

func collectActivities(rows pgx.Rows) ([]activity.Activity, error) {
	defer rows.Close()
	var out []activity.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}
	return out, nil
}

func features(a activity.Activity) []string {
	if a.Features == nil {
		return []string{}
	}
	return a.Features
}

// SaveActivity looks the item up by source URL (or title and suburb when it has none)
// under a row lock. A match has its empty columns filled and scraped_at bumped; otherwise
// the item is inserted. A concurrent insert of the same source URL is retried once as a match.
func (s *Store) SaveActivity(ctx context.Context, a activity.Activity) (activity.Activity, store.SaveOutcome, error) {
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = s.now()
	}
	saved, outcome, err := s.saveOnce(ctx, a)
	if name, ok := uniqueConstraint(err); ok && name == sourceURLConstraint {
		saved, outcome, err = s.saveOnce(ctx, a)
	}
	if err != nil {
		return activity.Activity{}, "", err
	}
	return saved, outcome, nil
}

func (s *Store) saveOnce(ctx context.Context, a activity.Activity) (activity.Activity, store.SaveOutcome, error) {
	var (
		saved   activity.Activity
		outcome store.SaveOutcome
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		existing, err := findForUpdate(ctx, tx, a)
		switch {
		case err == nil:
			saved, err = refresh(ctx, tx, existing, a, s.now())
			outcome = store.Duplicate
			return err
		case errors.Is(err, store.ErrNotFound):
			saved, err = insert(ctx, tx, a)
			outcome = store.Inserted
			return err
		default:
			return err
		}
	})
	return saved, outcome, err
}

func findForUpdate(ctx context.Context, tx pgx.Tx, a activity.Activity) (activity.Activity, error) {
	var row pgx.Row
	if a.SourceURL != "" {
		row = tx.QueryRow(ctx, `SELECT `+activityColumns+`
FROM activities WHERE source_url = $1 FOR UPDATE`, a.SourceURL)
	} else {
		row = tx.QueryRow(ctx, `SELECT `+activityColumns+`
FROM activities WHERE lower(title) = lower($1) AND lower(suburb) = lower($2)
ORDER BY id LIMIT 1 FOR UPDATE`, a.Title, a.Suburb)
	}
	existing, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return activity.Activity{}, store.ErrNotFound
	}
	if err != nil {
		return activity.Activity{}, fmt.Errorf("find activity: %w", err)
	}
	return existing, nil
}

func refresh(ctx context.Context, tx pgx.Tx, existing, incoming activity.Activity, now time.Time) (activity.Activity, error) {
	merged := existing.MergeMissing(incoming)
	merged.ScrapedAt = incoming.ScrapedAt
	merged.UpdatedAt = now
	_, err := tx.Exec(ctx, `UPDATE activities SET
	description = $1, category = $2, street_address = $3, suburb = $4, postcode = $5, state = $6,
	phone = $7, email = $8, website = $9, age_range = $10, cost = $11, schedule = $12,
	image_url = $13, features = $14, source_url = $15, scraped_at = $16, updated_at = $17
WHERE id = $18`,
		merged.Description,
		merged.Category,
		merged.StreetAddress,
		merged.Suburb,
		merged.Postcode,
		merged.State,
		merged.Phone,
		merged.Email,
		merged.Website,
		merged.AgeRange,
		merged.Cost,
		merged.Schedule,
		merged.ImageURL,
		features(merged),
		nullString(merged.SourceURL),
		merged.ScrapedAt,
		merged.UpdatedAt,
		merged.ID,
	)
	if err != nil {
		return activity.Activity{}, fmt.Errorf("refresh activity: %w", err)
	}
	return merged, nil
}

func insert(ctx context.Context, tx pgx.Tx, a activity.Activity) (activity.Activity, error) {
	err := tx.QueryRow(ctx, `INSERT INTO activities (
	title, description, category, street_address, suburb, postcode, state,
	phone, email, website, age_range, cost, schedule, image_url, features,
	source_url, source_name, approved, scraped_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
RETURNING id, created_at, updated_at`,
		a.Title,
		a.Description,
		a.Category,
		a.StreetAddress,
		a.Suburb,
		a.Postcode,
		a.State,
		a.Phone,
		a.Email,
		a.Website,
		a.AgeRange,
		a.Cost,
		a.Schedule,
		a.ImageURL,
		features(a),
		nullString(a.SourceURL),
		a.SourceName,
		a.Approved,
		a.ScrapedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return activity.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	return a, nil
}

// GetActivity loads one activity or returns store.ErrNotFound.
func (s *Store) GetActivity(ctx context.Context, id int64) (activity.Activity, error) {
	a, err := scanActivity(s.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return activity.Activity{}, store.ErrNotFound
	}
	if err != nil {
		return activity.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

// activityWhere renders the WHERE clause for f and its positional arguments.
func activityWhere(f store.ActivityFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	switch f.Approval {
	case store.PendingOnly:
		clauses = append(clauses, "approved = FALSE")
	case store.AnyApproval:
	default:
		clauses = append(clauses, "approved = TRUE")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%[1]d OR description ILIKE $%[1]d OR suburb ILIKE $%[1]d)", len(args)))
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		args = append(args, c)
		clauses = append(clauses, fmt.Sprintf("lower(category) = lower($%d)", len(args)))
	}
	if sub := strings.TrimSpace(f.Suburb); sub != "" {
		args = append(args, sub)
		clauses = append(clauses, fmt.Sprintf("lower(suburb) = lower($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SearchActivities returns one page of matching activities ordered by title.
func (s *Store) SearchActivities(ctx context.Context, f store.ActivityFilter) ([]activity.Activity, error) {
	where, args := activityWhere(f)
	args = append(args, f.Limit(), f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM activities%s ORDER BY title, id LIMIT $%d OFFSET $%d`,
		activityColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search activities: %w", err)
	}
	return collectActivities(rows)
}

// CountActivities counts activities matching f, ignoring paging.
func (s *Store) CountActivities(ctx context.Context, f store.ActivityFilter) (int, error) {
	where, args := activityWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

// Categories lists distinct categories of approved activities.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "category")
}

// Suburbs lists distinct suburbs of approved activities.
func (s *Store) Suburbs(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "suburb")
}

func (s *Store) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT %[1]s FROM activities WHERE approved = TRUE AND %[1]s <> '' ORDER BY %[1]s`, column))
	if err != nil {
		return nil, fmt.Errorf("list %s values: %w", column, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s values: %w", column, err)
	}
	return out, nil
}

// Featured returns the most recently added approved activities.
func (s *Store) Featured(ctx context.Context, limit int) ([]activity.Activity, error) {
	if limit <= 0 {
		limit = store.DefaultFeatured
	}
	rows, err := s.pool.Query(ctx, `SELECT `+activityColumns+`
FROM activities WHERE approved = TRUE ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("featured activities: %w", err)
	}
	return collectActivities(rows)
}

// SetApproved flips the moderation flag.
func (s *Store) SetApproved(ctx context.Context, id int64, approved bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE activities SET approved = $1, updated_at = $2 WHERE id = $3`,
		approved, s.now(), id)
	if err != nil {
		return fmt.Errorf("set approved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteActivity removes an activity; favourites cascade.
func (s *Store) DeleteActivity(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SourceStats aggregates stored activities per spider.
func (s *Store) SourceStats(ctx context.Context) ([]store.SourceStat, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_name, COUNT(*), MAX(scraped_at)
FROM activities GROUP BY source_name ORDER BY source_name`)
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	defer rows.Close()
	var out []store.SourceStat
	for rows.Next() {
		var st store.SourceStat
		if err := rows.Scan(&st.SourceName, &st.Count, &st.LastScraped); err != nil {
			return nil, fmt.Errorf("scan source stat: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source stats: %w", err)
	}
	return out, nil
}

// Each streams every activity ordered by id.
func (s *Store) Each(ctx context.Context, fn func(activity.Activity) error) error {
	rows, err := s.pool.Query(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY id`)
	if err != nil {
		return fmt.Errorf("stream activities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return fmt.Errorf("scan activity row: %w", err)
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate activity rows: %w", err)
	}
	return nil
}
