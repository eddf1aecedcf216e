package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/kidssmart/internal/store"
)

// AddFavourite stores f; adding the same pair twice is a no-op.
func (s *Store) AddFavourite(ctx context.Context, f store.Favourite) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO favourites (
	user_id, activity_id, title, url, image_url, age_range, category, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, activity_id) DO NOTHING`,
		f.UserID, f.ActivityID, f.Title, f.URL, f.ImageURL, f.AgeRange, f.Category, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("add favourite: %w", err)
	}
	return nil
}

// RemoveFavourite deletes the pair if present.
func (s *Store) RemoveFavourite(ctx context.Context, userID, activityID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM favourites WHERE user_id = $1 AND activity_id = $2`,
		userID, activityID); err != nil {
		return fmt.Errorf("remove favourite: %w", err)
	}
	return nil
}

// IsFavourite reports whether the user saved the activity.
func (s *Store) IsFavourite(ctx context.Context, userID, activityID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM favourites WHERE user_id = $1 AND activity_id = $2)`,
		userID, activityID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check favourite: %w", err)
	}
	return ok, nil
}

// ListFavourites returns the user's favourites, newest first.
func (s *Store) ListFavourites(ctx context.Context, userID int64) ([]store.Favourite, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, activity_id, title, url, image_url, age_range, category, created_at
FROM favourites WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favourites: %w", err)
	}
	defer rows.Close()
	var out []store.Favourite
	for rows.Next() {
		var f store.Favourite
		if err := rows.Scan(&f.UserID, &f.ActivityID, &f.Title, &f.URL, &f.ImageURL, &f.AgeRange, &f.Category, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favourite: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favourites: %w", err)
	}
	return out, nil
}
