// Package activity defines the Activity record every spider produces and the
// normalization rules applied before it is stored.
package activity

import (
	"encoding/json"
	"errors"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Validation errors returned by Validate.
var (
	ErrMissingTitle  = errors.New("activity title is required")
	ErrMissingSource = errors.New("activity source name is required")
)

const (
	maxDescriptionRunes = 1000
	maxFeatures         = 15
)

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	postcodeExpr = regexp.MustCompile(`^\d{4}$`)
)

// Activity is one children's activity listing.
type Activity struct {
	ID            int64     `json:"id,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category,omitempty"`
	StreetAddress string    `json:"street_address,omitempty"`
	Suburb        string    `json:"suburb,omitempty"`
	Postcode      string    `json:"postcode,omitempty"`
	State         string    `json:"state,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email,omitempty"`
	Website       string    `json:"website,omitempty"`
	AgeRange      string    `json:"age_range,omitempty"`
	Cost          string    `json:"cost,omitempty"`
	Schedule      string    `json:"schedule,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	Features      []string  `json:"features,omitempty"`
	SourceURL     string    `json:"source_url,omitempty"`
	SourceName    string    `json:"source_name"`
	Approved      bool      `json:"approved"`
	ScrapedAt     time.Time `json:"scraped_at,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts the legacy "activity_type", "address" and "image" keys.
func (a *Activity) UnmarshalJSON(data []byte) error {
	type plain Activity
	aux := struct {
		*plain
		ActivityType string `json:"activity_type"`
		Address      string `json:"address"`
		Image        string `json:"image"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err //nolint:wrapcheck // surfaced unchanged to json callers
	}
	if a.Category == "" {
		a.Category = aux.ActivityType
	}
	if a.StreetAddress == "" {
		a.StreetAddress = aux.Address
	}
	if a.ImageURL == "" {
		a.ImageURL = aux.Image
	}
	return nil
}

// Normalize returns a cleaned copy of a. Invalid optional values are cleared rather than rejected.
func Normalize(a Activity) Activity {
	a.Title = CollapseSpace(a.Title)
	a.Description = truncateRunes(CollapseSpace(a.Description), maxDescriptionRunes)
	a.Category = CollapseSpace(a.Category)
	a.StreetAddress = strings.Trim(CollapseSpace(a.StreetAddress), " ,")
	a.Suburb = TitleCase(strings.Trim(CollapseSpace(a.Suburb), " ,"))
	a.Postcode = strings.TrimSpace(a.Postcode)
	if !postcodeExpr.MatchString(a.Postcode) {
		a.Postcode = ""
	}
	a.State = strings.ToUpper(CollapseSpace(a.State))
	if a.State == "" && isVictorianPostcode(a.Postcode) {
		a.State = "VIC"
	}
	a.Phone = CollapseSpace(a.Phone)
	a.Email = normalizeEmail(a.Email)
	a.Website = httpURLOrEmpty(a.Website)
	a.AgeRange = CollapseSpace(a.AgeRange)
	a.Cost = CollapseSpace(a.Cost)
	a.Schedule = CollapseSpace(a.Schedule)
	a.ImageURL = httpURLOrEmpty(a.ImageURL)
	a.SourceURL = httpURLOrEmpty(a.SourceURL)
	a.SourceName = CollapseSpace(a.SourceName)
	a.Features = dedupe(a.Features, maxFeatures)
	return a
}

// Validate enforces the required fields.
func (a Activity) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return ErrMissingTitle
	}
	if strings.TrimSpace(a.SourceName) == "" {
		return ErrMissingSource
	}
	return nil
}

// DedupKey is the secondary natural key used when no source URL is known.
func (a Activity) DedupKey() string {
	return strings.ToLower(a.Title) + "|" + strings.ToLower(a.Suburb)
}

// Address renders the street, suburb, state and postcode on one line.
func (a Activity) Address() string {
	var parts []string
	if a.StreetAddress != "" {
		parts = append(parts, a.StreetAddress)
	}
	locality := strings.TrimSpace(strings.Join([]string{a.Suburb, a.State, a.Postcode}, " "))
	if locality != "" {
		parts = append(parts, CollapseSpace(locality))
	}
	return strings.Join(parts, ", ")
}

// MergeMissing fills empty fields of a with values from b. Non-empty fields are never overwritten.
func (a Activity) MergeMissing(b Activity) Activity {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&a.Description, b.Description)
	fill(&a.Category, b.Category)
	fill(&a.StreetAddress, b.StreetAddress)
	fill(&a.Suburb, b.Suburb)
	fill(&a.Postcode, b.Postcode)
	fill(&a.State, b.State)
	fill(&a.Phone, b.Phone)
	fill(&a.Email, b.Email)
	fill(&a.Website, b.Website)
	fill(&a.AgeRange, b.AgeRange)
	fill(&a.Cost, b.Cost)
	fill(&a.Schedule, b.Schedule)
	fill(&a.ImageURL, b.ImageURL)
	fill(&a.SourceURL, b.SourceURL)
	if len(a.Features) == 0 {
		a.Features = b.Features
	}
	return a
}

// TitleCase upper-cases the first letter of every word in s and lower-cases the rest.
func TitleCase(s string) string {
	// Casers carry state and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.ToLower(s))
}

// CollapseSpace trims s and folds every whitespace run into a single space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func isVictorianPostcode(pc string) bool {
	n, err := strconv.Atoi(pc)
	if err != nil {
		return false
	}
	return (n >= 3000 && n <= 3999) || (n >= 8000 && n <= 8999)
}

func normalizeEmail(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "mailto:")))
	if raw == "" {
		return ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !strings.Contains(raw[strings.LastIndex(raw, "@"):], ".") {
		return ""
	}
	return raw
}

func httpURLOrEmpty(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

func dedupe(values []string, limit int) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = CollapseSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
