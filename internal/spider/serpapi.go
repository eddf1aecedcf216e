package spider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/extract"
)

const serpapiDefaultDescription = "Kids-related activity or venue"

// Serpapi searches Google Maps through SerpApi for every category keyword.
type Serpapi struct {
	apiKey   string
	baseURL  string
	location string
	minDelay time.Duration
	enrich   bool
}

// NewSerpapi constructs the SerpApi spider. Enrichment is on unless disabled.
func NewSerpapi(cfg SerpapiConfig) *Serpapi {
	enrich := true
	if cfg.Enrich != nil {
		enrich = *cfg.Enrich
	}
	return &Serpapi{
		apiKey:   cfg.APIKey,
		baseURL:  orString(cfg.BaseURL, defaultSerpapiURL),
		location: orString(cfg.Location, defaultSerpapiLocation),
		minDelay: orDuration(cfg.MinDelay, defaultSerpapiDelay),
		enrich:   enrich,
	}
}

// Name implements Spider.
func (s *Serpapi) Name() string { return "serpapi" }

// Description implements Spider.
func (s *Serpapi) Description() string { return "Google Maps kids classes via SerpApi" }

// Run queries each search keyword and optionally enriches results from their websites.
func (s *Serpapi) Run(ctx context.Context, env Env, emit Emit) error {
	if s.apiKey == "" {
		return fmt.Errorf("serpapi: %w", ErrMissingAPIKey)
	}
	var errs []error
	for _, group := range extract.SearchKeywords {
		for _, kw := range group.Keywords {
			if err := ctx.Err(); err != nil {
				return err //nolint:wrapcheck // cancellation is surfaced unchanged
			}
			log := env.logger().With(zap.String("keyword", kw))
			searchURL := s.searchURL(kw)
			resp, err := fetch(ctx, env, s.Name(), searchURL, s.minDelay)
			if err != nil {
				err = redactKey(err, s.apiKey)
				log.Warn("search failed", zap.Error(err))
				errs = append(errs, err)
				continue
			}
			items, err := ParseSerpapi(resp.Body, extract.CategoryForKeyword(kw), redactURL(searchURL))
			if err != nil {
				log.Warn("search response unreadable", zap.Error(err))
				errs = append(errs, err)
				continue
			}
			for _, item := range items {
				if s.enrich && item.Website != "" {
					item = s.enrichItem(ctx, env, item)
				}
				item.ScrapedAt = env.now()
				if err := send(ctx, emit, item); err != nil {
					return err
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Serpapi) searchURL(keyword string) string {
	q := url.Values{}
	q.Set("engine", "google_maps")
	q.Set("type", "search")
	q.Set("q", fmt.Sprintf("%s classes for kids in %s", keyword, s.location))
	q.Set("api_key", s.apiKey)
	return s.baseURL + "?" + q.Encode()
}

// redactURL drops the api_key parameter so it never lands in stored source URLs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Del("api_key")
	u.RawQuery = q.Encode()
	return u.String()
}

// enrichItem fetches the venue website and fills details the search result lacks.
// Failures leave the item as it was.
func (s *Serpapi) enrichItem(ctx context.Context, env Env, item activity.Activity) activity.Activity {
	doc, err := fetchDocument(ctx, env, s.Name(), item.Website)
	if err != nil {
		env.logger().Debug("enrichment skipped", zap.String("url", item.Website), zap.Error(err))
		return item
	}
	return EnrichFromDocument(item, doc.Selection)
}

// EnrichFromDocument fills description, email, schedule, cost and age range from a venue page.
// Only the description may replace an existing value, and only the search default.
func EnrichFromDocument(item activity.Activity, doc *goquery.Selection) activity.Activity {
	if meta := extract.MetaDescription(doc); meta != "" &&
		(item.Description == "" || item.Description == serpapiDefaultDescription) {
		item.Description = meta
	}
	text := extract.VisibleText(doc)
	if item.Email == "" {
		item.Email = extract.EmailFromDocument(doc)
	}
	if item.Schedule == "" {
		item.Schedule = extract.Schedule(extract.Lines(text))
	}
	if item.Cost == "" {
		item.Cost = extract.Cost(text)
	}
	if item.AgeRange == "" {
		item.AgeRange = extract.AgeRange(text)
	}
	return item
}

// ParseSerpapi converts a Google Maps search response into activities.
func ParseSerpapi(body []byte, category, searchURL string) ([]activity.Activity, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("serpapi: invalid json")
	}
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		return nil, fmt.Errorf("serpapi: %s", msg)
	}
	var out []activity.Activity
	gjson.GetBytes(body, "local_results").ForEach(func(_, r gjson.Result) bool {
		title := strings.TrimSpace(r.Get("title").String())
		if title == "" {
			return true
		}
		address := strings.TrimSpace(r.Get("address").String())
		website := strings.TrimSpace(r.Get("website").String())
		if !crawler.IsHTTP(website) {
			website = ""
		}
		description := firstString(r, "description", "snippet")
		if description == "" {
			description = serpapiDefaultDescription
		}
		out = append(out, activity.Activity{
			Title:         title,
			Description:   description,
			Category:      category,
			StreetAddress: strings.TrimSpace(strings.SplitN(address, ",", 2)[0]),
			Suburb:        extract.SuburbFromCommaAddress(address),
			Postcode:      extract.Postcode(address),
			Phone:         strings.TrimSpace(r.Get("phone").String()),
			Website:       website,
			ImageURL:      strings.TrimSpace(r.Get("thumbnail").String()),
			SourceURL:     serpapiSourceURL(r, website, searchURL),
			SourceName:    "serpapi",
			Approved:      true,
		})
		return true
	})
	return out, nil
}

func serpapiSourceURL(r gjson.Result, website, searchURL string) string {
	if website != "" {
		return website
	}
	if directions := r.Get("links.directions").String(); crawler.IsHTTP(directions) {
		return directions
	}
	if id := r.Get("place_id").String(); id != "" {
		return searchURL + "#" + id
	}
	return ""
}
