package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/kidssmart/internal/store"
)

const userColumns = `id, username, COALESCE(email, ''), password_hash, first_name, last_name,
	suburb, postcode, child_age_range, is_admin, is_active, is_verified, created_at, last_login`

func scanUser(row scanner) (store.User, error) {
	var u store.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Suburb,
		&u.Postcode,
		&u.ChildAgeRange,
		&u.IsAdmin,
		&u.Active,
		&u.Verified,
		&u.CreatedAt,
		&u.LastLogin,
	)
	return u, err //nolint:wrapcheck // callers wrap with context
}

// CreateUser inserts u and maps unique violations to store.ErrUsernameTaken or store.ErrEmailTaken.
// The row takes the column defaults for is_active and is_verified.
func (s *Store) CreateUser(ctx context.Context, u store.User) (store.User, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO users (
	username, email, password_hash, first_name, last_name, suburb, postcode, child_age_range, is_admin
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at`,
		u.Username,
		nullString(u.Email),
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.Suburb,
		u.Postcode,
		u.ChildAgeRange,
		u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt)
	if name, ok := uniqueConstraint(err); ok {
		if strings.Contains(name, "email") {
			return store.User{}, store.ErrEmailTaken
		}
		return store.User{}, store.ErrUsernameTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	u.Active, u.Verified = true, false
	return u, nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (store.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByUsername loads a user by case-insensitive username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, store.ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// TouchLastLogin records a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateProfile writes the editable profile fields of u.ID.
func (s *Store) UpdateProfile(ctx context.Context, u store.User) error {
	return s.execUser(ctx, "update profile", `UPDATE users
SET first_name = $1, last_name = $2, suburb = $3, postcode = $4, child_age_range = $5
WHERE id = $6`, u.FirstName, u.LastName, u.Suburb, u.Postcode, u.ChildAgeRange, u.ID)
}

// SetPasswordHash replaces the stored bcrypt hash.
func (s *Store) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	return s.execUser(ctx, "set password", `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
}

// SetActive enables or disables logins for the account.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	return s.execUser(ctx, "set active", `UPDATE users SET is_active = $1 WHERE id = $2`, active, id)
}

// SetVerified flips the verified flag.
func (s *Store) SetVerified(ctx context.Context, id int64, verified bool) error {
	return s.execUser(ctx, "set verified", `UPDATE users SET is_verified = $1 WHERE id = $2`, verified, id)
}

// DeleteUser removes the account; favourites cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.execUser(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

func (s *Store) execUser(ctx context.Context, what, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// userWhere renders the WHERE clause for f and its positional arguments.
func userWhere(f store.UserFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	switch f.Status {
	case store.ActiveUsers:
		clauses = append(clauses, "is_active = TRUE")
	case store.InactiveUsers:
		clauses = append(clauses, "is_active = FALSE")
	case store.UnverifiedUsers:
		clauses = append(clauses, "is_verified = FALSE")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		clauses = append(clauses, fmt.Sprintf(
			"(username ILIKE $%[1]d OR COALESCE(email, '') ILIKE $%[1]d OR first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d)",
			len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SearchUsers returns one page of matching accounts, newest first.
func (s *Store) SearchUsers(ctx context.Context, f store.UserFilter) ([]store.User, error) {
	where, args := userWhere(f)
	args = append(args, f.Limit(), f.Offset())
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()
	var out []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// CountUsers counts accounts matching f, ignoring paging.
func (s *Store) CountUsers(ctx context.Context, f store.UserFilter) (int, error) {
	where, args := userWhere(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
