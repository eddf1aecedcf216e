package migrations

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedSourceHasInitialSchema(t *testing.T) {
	t.Parallel()

	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	up, _, err := src.ReadUp(first)
	require.NoError(t, err)
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	require.NoError(t, up.Close())
	for _, table := range []string{"activities", "users", "favourites", "scrape_runs"} {
		require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}
	require.Contains(t, string(body), "CONSTRAINT activities_source_url_key UNIQUE (source_url)")

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	require.NoError(t, down.Close())
}

func TestEmbeddedSourceAddsUserStatus(t *testing.T) {
	t.Parallel()

	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	next, err := src.Next(1)
	require.NoError(t, err)
	require.Equal(t, uint(2), next)

	up, _, err := src.ReadUp(next)
	require.NoError(t, err)
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	require.NoError(t, up.Close())
	require.Contains(t, string(body), "is_active BOOLEAN NOT NULL DEFAULT TRUE")
	require.Contains(t, string(body), "is_verified BOOLEAN NOT NULL DEFAULT FALSE")
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New("", nil)
	require.Error(t, err)
}
