package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/kidssmart/internal/store"
)

// UserStore keeps accounts in memory.
type UserStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]store.User
}

// NewUserStore constructs a UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]store.User)}
}

// CreateUser enforces case-insensitive unique usernames and emails.
func (s *UserStore) CreateUser(_ context.Context, u store.User) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return store.User{}, store.ErrUsernameTaken
		}
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return store.User{}, store.ErrEmailTaken
		}
	}
	s.nextID++
	u.ID = s.nextID
	u.Active = true
	u.Verified = false
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

// GetUser loads a user by id.
func (s *UserStore) GetUser(_ context.Context, id int64) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

// GetUserByUsername loads a user by case-insensitive username.
func (s *UserStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

// TouchLastLogin records a successful login.
func (s *UserStore) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLogin = pointerTime(at)
	s.users[id] = u
	return nil
}

// UpdateProfile replaces the editable profile fields of u.ID.
func (s *UserStore) UpdateProfile(_ context.Context, u store.User) error {
	return s.update(u.ID, func(cur *store.User) {
		cur.FirstName = u.FirstName
		cur.LastName = u.LastName
		cur.Suburb = u.Suburb
		cur.Postcode = u.Postcode
		cur.ChildAgeRange = u.ChildAgeRange
	})
}

// SetPasswordHash replaces the stored bcrypt hash.
func (s *UserStore) SetPasswordHash(_ context.Context, id int64, hash string) error {
	return s.update(id, func(cur *store.User) { cur.PasswordHash = hash })
}

// SetActive enables or disables logins for the account.
func (s *UserStore) SetActive(_ context.Context, id int64, active bool) error {
	return s.update(id, func(cur *store.User) { cur.Active = active })
}

// SetVerified flips the verified flag.
func (s *UserStore) SetVerified(_ context.Context, id int64, verified bool) error {
	return s.update(id, func(cur *store.User) { cur.Verified = verified })
}

func (s *UserStore) update(id int64, fn func(*store.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}

// DeleteUser removes the account.
func (s *UserStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// SearchUsers returns one page of matching accounts, newest first.
func (s *UserStore) SearchUsers(_ context.Context, f store.UserFilter) ([]store.User, error) {
	all := s.matchingUsers(f)
	start := min(f.Offset(), len(all))
	end := min(start+f.Limit(), len(all))
	return all[start:end], nil
}

// CountUsers counts accounts matching f, ignoring paging.
func (s *UserStore) CountUsers(_ context.Context, f store.UserFilter) (int, error) {
	return len(s.matchingUsers(f)), nil
}

func (s *UserStore) matchingUsers(f store.UserFilter) []store.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var out []store.User
	for _, u := range s.users {
		if !f.Matches(u) {
			continue
		}
		if q != "" && !containsAny(q, u.Username, u.Email, u.FirstName, u.LastName) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func containsAny(q string, fields ...string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

type favouriteKey struct{ user, activity int64 }

// FavouriteStore keeps favourites in memory.
type FavouriteStore struct {
	mu   sync.RWMutex
	favs map[favouriteKey]store.Favourite
}

// NewFavouriteStore constructs a FavouriteStore.
func NewFavouriteStore() *FavouriteStore {
	return &FavouriteStore{favs: make(map[favouriteKey]store.Favourite)}
}

// AddFavourite keeps the first snapshot when the pair already exists.
func (s *FavouriteStore) AddFavourite(_ context.Context, f store.Favourite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := favouriteKey{f.UserID, f.ActivityID}
	if _, ok := s.favs[key]; ok {
		return nil
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	s.favs[key] = f
	return nil
}

// RemoveFavourite deletes the pair if present.
func (s *FavouriteStore) RemoveFavourite(_ context.Context, userID, activityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.favs, favouriteKey{userID, activityID})
	return nil
}

// IsFavourite reports whether the pair exists.
func (s *FavouriteStore) IsFavourite(_ context.Context, userID, activityID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.favs[favouriteKey{userID, activityID}]
	return ok, nil
}

// ListFavourites returns the user's favourites, newest first.
func (s *FavouriteStore) ListFavourites(_ context.Context, userID int64) ([]store.Favourite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Favourite
	for key, f := range s.favs {
		if key.user == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ActivityID > out[j].ActivityID
	})
	return out, nil
}
