package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/store"
)

func TestActivityStoreDeduplicates(t *testing.T) {
	t.Parallel()

	s := NewActivityStore()
	ctx := context.Background()

	first, outcome, err := s.SaveActivity(ctx, activity.Activity{
		Title: "Little Kickers", Suburb: "Werribee", Phone: "(03) 9000 0000", SourceName: "serpapi", Approved: true,
	})
	require.NoError(t, err)
	require.Equal(t, store.Inserted, outcome)

	again, outcome, err := s.SaveActivity(ctx, activity.Activity{
		Title: "LITTLE KICKERS", Suburb: "werribee", Phone: "0400 000 000", Email: "hi@kickers.example", SourceName: "serpapi",
	})
	require.NoError(t, err)
	require.Equal(t, store.Duplicate, outcome)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, "(03) 9000 0000", again.Phone)
	require.Equal(t, "hi@kickers.example", again.Email)

	byURL, outcome, err := s.SaveActivity(ctx, activity.Activity{
		Title: "Little Kickers", Suburb: "Werribee", SourceURL: "https://kickers.example", SourceName: "serpapi",
	})
	require.NoError(t, err)
	require.Equal(t, store.Inserted, outcome, "a source URL is matched on its own")
	require.NotEqual(t, first.ID, byURL.ID)

	n, err := s.CountActivities(ctx, store.ActivityFilter{Approval: store.AnyApproval})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestActivityStoreSearch(t *testing.T) {
	t.Parallel()

	s := NewActivityStore()
	ctx := context.Background()
	seed := []activity.Activity{
		{Title: "Ballet Basics", Category: "Dance", Suburb: "Sunshine", SourceName: "a", Approved: true},
		{Title: "Art Attack", Category: "Art", Suburb: "Kealba", Description: "Painting for kids", SourceName: "a", Approved: true},
		{Title: "Hidden Class", Category: "Art", Suburb: "Kealba", SourceName: "a"},
	}
	for _, a := range seed {
		_, _, err := s.SaveActivity(ctx, a)
		require.NoError(t, err)
	}

	got, err := s.SearchActivities(ctx, store.ActivityFilter{Query: "painting"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Art Attack", got[0].Title)

	got, err = s.SearchActivities(ctx, store.ActivityFilter{Category: "art", Approval: store.AnyApproval})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = s.SearchActivities(ctx, store.ActivityFilter{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Ballet Basics", got[0].Title)

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Art", "Dance"}, cats)

	pending, err := s.SearchActivities(ctx, store.ActivityFilter{Approval: store.PendingOnly})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.SetApproved(ctx, pending[0].ID, true))
	subs, err := s.Suburbs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Kealba", "Sunshine"}, subs)

	require.NoError(t, s.DeleteActivity(ctx, pending[0].ID))
	require.ErrorIs(t, s.DeleteActivity(ctx, pending[0].ID), store.ErrNotFound)
	_, err = s.GetActivity(ctx, pending[0].ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestActivityStoreFeaturedAndStats(t *testing.T) {
	t.Parallel()

	s := NewActivityStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	ctx := context.Background()
	for _, title := range []string{"One", "Two", "Three"} {
		_, _, err := s.SaveActivity(ctx, activity.Activity{Title: title, SourceName: "geoapify", Approved: true})
		require.NoError(t, err)
	}

	featured, err := s.Featured(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "Three", featured[0].Title)
	require.Len(t, featured, 2)

	stats, err := s.SourceStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, int64(3), stats[0].Count)

	var titles []string
	require.NoError(t, s.Each(ctx, func(a activity.Activity) error {
		titles = append(titles, a.Title)
		return nil
	}))
	require.Equal(t, []string{"One", "Two", "Three"}, titles)
}
