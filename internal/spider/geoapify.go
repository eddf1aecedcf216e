package spider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
)

const geoapifyDefaultDescription = "Family and kids-friendly activity location"

// cityCenters holds lon/lat pairs; Geoapify circles take longitude first.
var cityCenters = map[string][2]float64{
	"melbourne": {144.9631, -37.8136},
	"sydney":    {151.2093, -33.8688},
	"brisbane":  {153.0251, -27.4698},
	"perth":     {115.8575, -31.9505},
	"adelaide":  {138.6007, -34.9285},
}

// Geoapify queries the Geoapify Places API around each configured city.
type Geoapify struct {
	apiKey     string
	baseURL    string
	cities     []string
	categories []string
	radius     int
	limit      int
}

// NewGeoapify constructs the Places spider.
func NewGeoapify(cfg GeoapifyConfig) *Geoapify {
	return &Geoapify{
		apiKey:     cfg.APIKey,
		baseURL:    orString(cfg.BaseURL, defaultGeoapifyURL),
		cities:     orStrings(cfg.Cities, defaultGeoapifyCities),
		categories: orStrings(cfg.Categories, defaultGeoapifyCategories),
		radius:     orInt(cfg.RadiusM, defaultGeoapifyRadius),
		limit:      orInt(cfg.Limit, defaultGeoapifyLimit),
	}
}

// Name implements Spider.
func (s *Geoapify) Name() string { return "geoapify" }

// Description implements Spider.
func (s *Geoapify) Description() string { return "Geoapify Places around major Australian cities" }

// Run issues one request per city and category.
func (s *Geoapify) Run(ctx context.Context, env Env, emit Emit) error {
	if s.apiKey == "" {
		return fmt.Errorf("geoapify: %w", ErrMissingAPIKey)
	}
	var errs []error
	for _, city := range s.cities {
		center, ok := cityCenters[strings.ToLower(strings.TrimSpace(city))]
		if !ok {
			env.logger().Warn("unknown city skipped", zap.String("city", city))
			continue
		}
		for _, category := range s.categories {
			if err := ctx.Err(); err != nil {
				return err //nolint:wrapcheck // cancellation is surfaced unchanged
			}
			log := env.logger().With(zap.String("city", city), zap.String("category", category))
			resp, err := fetch(ctx, env, s.Name(), s.requestURL(category, center), 0)
			if err != nil {
				log.Warn("places request failed", zap.Error(redactKey(err, s.apiKey)))
				errs = append(errs, redactKey(err, s.apiKey))
				continue
			}
			items, err := ParseGeoapify(resp.Body, category)
			if err != nil {
				log.Warn("places response unreadable", zap.Error(err))
				errs = append(errs, err)
				continue
			}
			if len(items) == 0 {
				log.Info("no places found")
			}
			for _, item := range items {
				item.ScrapedAt = env.now()
				if err := send(ctx, emit, item); err != nil {
					return err
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Geoapify) requestURL(category string, center [2]float64) string {
	q := url.Values{}
	q.Set("categories", category)
	q.Set("filter", fmt.Sprintf("circle:%s,%s,%d",
		strconv.FormatFloat(center[0], 'f', -1, 64),
		strconv.FormatFloat(center[1], 'f', -1, 64),
		s.radius))
	q.Set("limit", strconv.Itoa(s.limit))
	q.Set("apiKey", s.apiKey)
	return s.baseURL + "?" + q.Encode()
}

// redactKey strips the API key from error text so it never reaches logs or run rows.
func redactKey(err error, key string) error {
	if err == nil || key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

// HumanizeGeoapifyCategory turns "activity.sports_centre" into "Sports Centre".
func HumanizeGeoapifyCategory(category string) string {
	parts := strings.Split(category, ".")
	last := parts[len(parts)-1]
	return activity.TitleCase(strings.ReplaceAll(last, "_", " "))
}

// ParseGeoapify converts a Places GeoJSON response into activities. Places without a
// name or an address are skipped.
func ParseGeoapify(body []byte, category string) ([]activity.Activity, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("geoapify: invalid json")
	}
	var out []activity.Activity
	gjson.GetBytes(body, "features").ForEach(func(_, feature gjson.Result) bool {
		p := feature.Get("properties")
		title := strings.TrimSpace(p.Get("name").String())
		address := firstString(p, "address_line2", "formatted")
		if title == "" || address == "" {
			return true
		}
		website := firstString(p, "datasource.raw.website", "datasource.raw.url", "website")
		if !crawler.IsHTTP(website) {
			website = ""
		}
		description := geoapifyDescription(p.Get("details"))
		out = append(out, activity.Activity{
			Title:         title,
			Description:   description,
			Category:      HumanizeGeoapifyCategory(category),
			StreetAddress: strings.TrimSpace(strings.SplitN(address, ",", 2)[0]),
			Suburb:        firstString(p, "suburb", "city", "district"),
			Postcode:      strings.TrimSpace(p.Get("postcode").String()),
			State:         strings.TrimSpace(p.Get("state_code").String()),
			Phone:         firstString(p, "datasource.raw.phone", "contact.phone"),
			Website:       website,
			SourceURL:     website,
			SourceName:    "geoapify",
			Approved:      true,
		})
		return true
	})
	return out, nil
}

// geoapifyDescription uses details only when it is prose; Geoapify usually sends a list of
// detail-group names there.
func geoapifyDescription(details gjson.Result) string {
	if details.Type == gjson.String && strings.TrimSpace(details.String()) != "" {
		return strings.TrimSpace(details.String())
	}
	return geoapifyDefaultDescription
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(r.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}
