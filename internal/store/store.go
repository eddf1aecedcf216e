package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
)

// Shared repository errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
)

// DefaultPageSize is used when a filter does not set PageSize.
const DefaultPageSize = 12

// DefaultFeatured is the number of activities shown on the home page.
const DefaultFeatured = 6

// SaveOutcome reports what SaveActivity did with an item.
type SaveOutcome string

// Save outcomes.
const (
	Inserted  SaveOutcome = "inserted"
	Duplicate SaveOutcome = "duplicate"
)

// ApprovalFilter restricts searches by moderation state.
type ApprovalFilter string

// Approval filters.
const (
	ApprovedOnly ApprovalFilter = "approved"
	PendingOnly  ApprovalFilter = "pending"
	AnyApproval  ApprovalFilter = "all"
)

// ActivityFilter drives SearchActivities and CountActivities.
type ActivityFilter struct {
	// Query matches title, description or suburb case-insensitively.
	Query    string
	Category string
	Suburb   string
	Approval ApprovalFilter
	// Page is 1-based.
	Page     int
	PageSize int
}

// Limit returns the effective page size.
func (f ActivityFilter) Limit() int { return pageLimit(f.PageSize) }

// Offset returns the row offset for the requested page.
func (f ActivityFilter) Offset() int { return pageOffset(f.Page, f.PageSize) }

func pageLimit(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	return size
}

func pageOffset(page, size int) int {
	if page <= 1 {
		return 0
	}
	return (page - 1) * pageLimit(size)
}

// UserStatus restricts user searches by account state.
type UserStatus string

// User statuses. The zero value matches every account.
const (
	AnyUserStatus   UserStatus = "all"
	ActiveUsers     UserStatus = "active"
	InactiveUsers   UserStatus = "inactive"
	UnverifiedUsers UserStatus = "unverified"
)

// UserFilter drives SearchUsers and CountUsers.
type UserFilter struct {
	// Query matches username, email, first or last name case-insensitively.
	Query    string
	Status   UserStatus
	// Page is 1-based.
	Page     int
	PageSize int
}

// Limit returns the effective page size.
func (f UserFilter) Limit() int { return pageLimit(f.PageSize) }

// Offset returns the row offset for the requested page.
func (f UserFilter) Offset() int { return pageOffset(f.Page, f.PageSize) }

// Matches reports whether u passes the status filter. Query matching is left to stores.
func (f UserFilter) Matches(u User) bool {
	switch f.Status {
	case ActiveUsers:
		return u.Active
	case InactiveUsers:
		return !u.Active
	case UnverifiedUsers:
		return !u.Verified
	default:
		return true
	}
}

// SourceStat summarizes what one spider has stored.
type SourceStat struct {
	SourceName  string    `json:"source_name"`
	Count       int64     `json:"count"`
	LastScraped time.Time `json:"last_scraped"`
}

// User is a registered account.
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	PasswordHash  string     `json:"-"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Suburb        string     `json:"suburb,omitempty"`
	Postcode      string     `json:"postcode,omitempty"`
	ChildAgeRange string     `json:"child_age_range,omitempty"`
	IsAdmin       bool       `json:"is_admin"`
	Active        bool       `json:"is_active"`
	Verified      bool       `json:"is_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

// Favourite is a saved activity with a snapshot of its listing taken when it was added.
type Favourite struct {
	UserID     int64     `json:"user_id"`
	ActivityID int64     `json:"activity_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	AgeRange   string    `json:"age_range,omitempty"`
	Category   string    `json:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// FavouriteFrom snapshots a.
func FavouriteFrom(userID int64, a activity.Activity, at time.Time) Favourite {
	url := a.Website
	if url == "" {
		url = a.SourceURL
	}
	return Favourite{
		UserID:     userID,
		ActivityID: a.ID,
		Title:      a.Title,
		URL:        url,
		ImageURL:   a.ImageURL,
		AgeRange:   a.AgeRange,
		Category:   a.Category,
		CreatedAt:  at,
	}
}

// ActivityStore persists activities.
type ActivityStore interface {
	// SaveActivity runs the duplicate check and insert in one transaction.
	SaveActivity(ctx context.Context, a activity.Activity) (activity.Activity, SaveOutcome, error)
	GetActivity(ctx context.Context, id int64) (activity.Activity, error)
	SearchActivities(ctx context.Context, filter ActivityFilter) ([]activity.Activity, error)
	CountActivities(ctx context.Context, filter ActivityFilter) (int, error)
	// Categories and Suburbs list distinct non-empty values of approved activities.
	Categories(ctx context.Context) ([]string, error)
	Suburbs(ctx context.Context) ([]string, error)
	Featured(ctx context.Context, limit int) ([]activity.Activity, error)
	SetApproved(ctx context.Context, id int64, approved bool) error
	DeleteActivity(ctx context.Context, id int64) error
	SourceStats(ctx context.Context) ([]SourceStat, error)
	// Each streams every activity ordered by id; returning an error from fn stops iteration.
	Each(ctx context.Context, fn func(activity.Activity) error) error
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser stores an active, unverified account.
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	// UpdateProfile writes the name, suburb, postcode and child age range of u.ID.
	UpdateProfile(ctx context.Context, u User) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
	// SearchUsers returns one page of matching accounts, newest first.
	SearchUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CountUsers(ctx context.Context, filter UserFilter) (int, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetVerified(ctx context.Context, id int64, verified bool) error
	// DeleteUser removes the account; its favourites go with it.
	DeleteUser(ctx context.Context, id int64) error
}

// FavouriteStore persists saved activities.
type FavouriteStore interface {
	// AddFavourite is idempotent.
	AddFavourite(ctx context.Context, f Favourite) error
	RemoveFavourite(ctx context.Context, userID, activityID int64) error
	IsFavourite(ctx context.Context, userID, activityID int64) (bool, error)
	ListFavourites(ctx context.Context, userID int64) ([]Favourite, error)
}

// RunStore persists scrape runs.
type RunStore interface {
	StartRun(ctx context.Context, run crawler.Run) error
	FinishRun(ctx context.Context, run crawler.Run) error
	RecentRuns(ctx context.Context, limit int) ([]crawler.Run, error)
	FailedSince(ctx context.Context, since time.Time) ([]crawler.Run, error)
	// PruneRuns deletes finished runs started before olderThan and reports how many went.
	PruneRuns(ctx context.Context, olderThan time.Time) (int64, error)
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
