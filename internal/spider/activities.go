package spider

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
)

var categorySlugExpr = regexp.MustCompile(`/category/([^/]+)/`)

// Activities scrapes the activeactivities.com.au directory category pages.
type Activities struct {
	startURLs []string
}

// NewActivities constructs the directory spider.
func NewActivities(cfg ActivitiesConfig) *Activities {
	return &Activities{startURLs: orStrings(cfg.StartURLs, defaultActivitiesURLs)}
}

// Name implements Spider.
func (s *Activities) Name() string { return "activities" }

// Description implements Spider.
func (s *Activities) Description() string {
	return "activeactivities.com.au directory listings"
}

// Run fetches every start URL; a failed page is logged and the others still run.
func (s *Activities) Run(ctx context.Context, env Env, emit Emit) error {
	var errs []error
	for _, pageURL := range s.startURLs {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // cancellation is surfaced unchanged
		}
		doc, err := fetchDocument(ctx, env, s.Name(), pageURL)
		if err != nil {
			env.logger().Warn("listing page failed", zap.String("url", pageURL), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		for _, item := range ParseActivitiesListing(doc.Selection, pageURL) {
			item.ScrapedAt = env.now()
			if err := send(ctx, emit, item); err != nil {
				return err
			}
		}
	}
	return errors.Join(errs...)
}

// ActivitiesCategory derives the category from a "/category/<slug>/" URL.
func ActivitiesCategory(pageURL string) string {
	m := categorySlugExpr.FindStringSubmatch(pageURL)
	if m == nil {
		return "Unknown"
	}
	return activity.TitleCase(strings.ReplaceAll(m[1], "-", " "))
}

// ParseActivitiesListing reads the div.listing-container cards of a directory page.
func ParseActivitiesListing(doc *goquery.Selection, pageURL string) []activity.Activity {
	category := ActivitiesCategory(pageURL)
	var out []activity.Activity
	doc.Find("div.listing-container").Each(func(_ int, card *goquery.Selection) {
		link := card.Find(".listing-title a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}
		href, _ := link.Attr("href")
		out = append(out, activity.Activity{
			Title:         title,
			StreetAddress: strings.TrimSpace(card.Find(".listing-address-1").First().Text()),
			Suburb:        strings.TrimSpace(card.Find(".listing-address-location-bottom").First().Text()),
			Postcode:      strings.TrimSpace(card.Find(".listing-address-listing-postcode").First().Text()),
			Category:      category,
			SourceURL:     crawler.Resolve(pageURL, href),
			SourceName:    "activities",
			Approved:      true,
		})
	})
	return out
}
