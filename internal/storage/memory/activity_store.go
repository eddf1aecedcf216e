package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/store"
)

// ActivityStore provides an in-memory implementation for development/testing.
type ActivityStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]activity.Activity
	now    func() time.Time
}

// NewActivityStore constructs an ActivityStore.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		byID: make(map[int64]activity.Activity),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SaveActivity matches by source URL, else by title and suburb, and inserts when nothing matches.
func (s *ActivityStore) SaveActivity(_ context.Context, a activity.Activity) (activity.Activity, store.SaveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = now
	}
	if existing, ok := s.find(a); ok {
		merged := existing.MergeMissing(a)
		merged.ScrapedAt = a.ScrapedAt
		merged.UpdatedAt = now
		s.byID[merged.ID] = merged
		return merged, store.Duplicate, nil
	}
	s.nextID++
	a.ID = s.nextID
	a.CreatedAt = now
	a.UpdatedAt = now
	s.byID[a.ID] = a
	return a, store.Inserted, nil
}

func (s *ActivityStore) find(a activity.Activity) (activity.Activity, bool) {
	var (
		best  activity.Activity
		found bool
	)
	key := a.DedupKey()
	for _, candidate := range s.byID {
		var match bool
		if a.SourceURL != "" {
			match = candidate.SourceURL == a.SourceURL
		} else {
			match = candidate.DedupKey() == key
		}
		if match && (!found || candidate.ID < best.ID) {
			best, found = candidate, true
		}
	}
	return best, found
}

// GetActivity returns the activity or store.ErrNotFound.
func (s *ActivityStore) GetActivity(_ context.Context, id int64) (activity.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return activity.Activity{}, store.ErrNotFound
	}
	return a, nil
}

func matches(a activity.Activity, f store.ActivityFilter) bool {
	switch f.Approval {
	case store.PendingOnly:
		if a.Approved {
			return false
		}
	case store.AnyApproval:
	default:
		if !a.Approved {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(a.Title), q) &&
			!strings.Contains(strings.ToLower(a.Description), q) &&
			!strings.Contains(strings.ToLower(a.Suburb), q) {
			return false
		}
	}
	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(a.Category, c) {
		return false
	}
	if sub := strings.TrimSpace(f.Suburb); sub != "" && !strings.EqualFold(a.Suburb, sub) {
		return false
	}
	return true
}

func (s *ActivityStore) filtered(f store.ActivityFilter) []activity.Activity {
	var out []activity.Activity
	for _, a := range s.byID {
		if matches(a, f) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SearchActivities returns one page of matches ordered by title.
func (s *ActivityStore) SearchActivities(_ context.Context, f store.ActivityFilter) ([]activity.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.filtered(f)
	start := min(f.Offset(), len(all))
	end := min(start+f.Limit(), len(all))
	return all[start:end], nil
}

// CountActivities counts matches ignoring paging.
func (s *ActivityStore) CountActivities(_ context.Context, f store.ActivityFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filtered(f)), nil
}

// Categories lists distinct categories of approved activities.
func (s *ActivityStore) Categories(_ context.Context) ([]string, error) {
	return s.distinct(func(a activity.Activity) string { return a.Category }), nil
}

// Suburbs lists distinct suburbs of approved activities.
func (s *ActivityStore) Suburbs(_ context.Context) ([]string, error) {
	return s.distinct(func(a activity.Activity) string { return a.Suburb }), nil
}

func (s *ActivityStore) distinct(field func(activity.Activity) string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range s.byID {
		v := field(a)
		if !a.Approved || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Featured returns the newest approved activities.
func (s *ActivityStore) Featured(_ context.Context, limit int) ([]activity.Activity, error) {
	if limit <= 0 {
		limit = store.DefaultFeatured
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []activity.Activity
	for _, a := range s.byID {
		if a.Approved {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out[:min(limit, len(out))], nil
}

// SetApproved flips the moderation flag.
func (s *ActivityStore) SetApproved(_ context.Context, id int64, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Approved = approved
	a.UpdatedAt = s.now()
	s.byID[id] = a
	return nil
}

// DeleteActivity removes the activity.
func (s *ActivityStore) DeleteActivity(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// SourceStats aggregates activities per source name.
func (s *ActivityStore) SourceStats(_ context.Context) ([]store.SourceStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := map[string]*store.SourceStat{}
	for _, a := range s.byID {
		st, ok := stats[a.SourceName]
		if !ok {
			st = &store.SourceStat{SourceName: a.SourceName}
			stats[a.SourceName] = st
		}
		st.Count++
		if a.ScrapedAt.After(st.LastScraped) {
			st.LastScraped = a.ScrapedAt
		}
	}
	out := make([]store.SourceStat, 0, len(stats))
	for _, st := range stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceName < out[j].SourceName })
	return out, nil
}

// Each calls fn for every activity in id order.
func (s *ActivityStore) Each(ctx context.Context, fn func(activity.Activity) error) error {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	snapshot := make(map[int64]activity.Activity, len(s.byID))
	for id, a := range s.byID {
		snapshot[id] = a
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // context errors are surfaced unchanged
		}
		if err := fn(snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}
