package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/store"
)

var userColumnNames = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name",
	"suburb", "postcode", "child_age_range", "is_admin", "is_active", "is_verified", "created_at", "last_login",
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	u := store.User{Username: "sam", PasswordHash: "$2a$10$hash", Suburb: "Tarneit"}
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("sam", nil, "$2a$10$hash", "", "", "Tarneit", "", "", false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), fixedNow))

	created, err := s.CreateUser(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
	require.Equal(t, fixedNow, created.CreatedAt)
	require.True(t, created.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserMapsUniqueViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		constraint string
		want       error
	}{
		{constraint: "users_username_lower_idx", want: store.ErrUsernameTaken},
		{constraint: "users_email_key", want: store.ErrEmailTaken},
	}
	for _, tc := range tests {
		t.Run(tc.constraint, func(t *testing.T) {
			t.Parallel()

			s, mock := newMockStore(t)
			mock.ExpectQuery(`INSERT INTO users`).
				WithArgs(anyArgs(9)...).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})

			_, err := s.CreateUser(context.Background(), store.User{Username: "sam", Email: "sam@family.example"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGetUserByUsername(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM users WHERE lower\(username\) = lower\(\$1\)`).
		WithArgs("Sam").
		WillReturnRows(pgxmock.NewRows(userColumnNames).
			AddRow(int64(1), "sam", "", "hash", "Sam", "", "", "", "5-8", true, true, false, fixedNow, nil))

	u, err := s.GetUserByUsername(context.Background(), "Sam")
	require.NoError(t, err)
	require.Equal(t, "sam", u.Username)
	require.True(t, u.IsAdmin)
	require.True(t, u.Active)
	require.False(t, u.Verified)
	require.Nil(t, u.LastLogin)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	_, err = s.GetUser(context.Background(), 9)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchLastLogin(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users SET last_login = \$1 WHERE id = \$2`).
		WithArgs(fixedNow, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.TouchLastLogin(context.Background(), 1, fixedNow))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchUsers(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	f := store.UserFilter{Query: "sam_", Status: store.UnverifiedUsers, Page: 2, PageSize: 15}
	mock.ExpectQuery(`FROM users WHERE is_verified = FALSE AND \(username ILIKE \$1 OR COALESCE\(email, ''\) ILIKE \$1 .*\) ORDER BY created_at DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(`%sam\_%`, 15, 15).
		WillReturnRows(pgxmock.NewRows(userColumnNames).
			AddRow(int64(4), "sam_k", "", "hash", "", "", "", "", "", false, false, false, fixedNow, nil))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE is_verified = FALSE AND`).
		WithArgs(`%sam\_%`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(16))

	users, err := s.SearchUsers(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "sam_k", users[0].Username)
	require.False(t, users[0].Active)

	n, err := s.CountUsers(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdates(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE users\s+SET first_name = \$1, last_name = \$2, suburb = \$3, postcode = \$4, child_age_range = \$5\s+WHERE id = \$6`).
		WithArgs("Sam", "", "Tarneit", "3029", "5-8", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET password_hash = \$1 WHERE id = \$2`).
		WithArgs("$2a$10$new", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET is_active = \$1 WHERE id = \$2`).
		WithArgs(false, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE users SET is_verified = \$1 WHERE id = \$2`).
		WithArgs(true, int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ctx := context.Background()
	require.NoError(t, s.UpdateProfile(ctx, store.User{ID: 1, FirstName: "Sam", Suburb: "Tarneit", Postcode: "3029", ChildAgeRange: "5-8"}))
	require.NoError(t, s.SetPasswordHash(ctx, 1, "$2a$10$new"))
	require.NoError(t, s.SetActive(ctx, 1, false))
	require.ErrorIs(t, s.SetVerified(ctx, 9, true), store.ErrNotFound)
	require.NoError(t, s.DeleteUser(ctx, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}
