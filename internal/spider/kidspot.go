package spider

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
)

const kidspotSource = "Kidspot Art Activities"

var artWords = []string{"art", "paint", "craft", "drawing", "creative", "design"}

// KidspotArt scrapes Kidspot's art and craft activity cards.
type KidspotArt struct {
	startURL string
	maxPages int
}

// NewKidspotArt constructs the Kidspot spider.
func NewKidspotArt(cfg KidspotConfig) *KidspotArt {
	return &KidspotArt{
		startURL: orString(cfg.StartURL, defaultKidspotURL),
		maxPages: orInt(cfg.MaxPages, defaultKidspotMaxPages),
	}
}

// Name implements Spider.
func (s *KidspotArt) Name() string { return "kidspot_art" }

// Description implements Spider.
func (s *KidspotArt) Description() string { return "Kidspot art and craft activities" }

// Run follows a.pagination__next until it runs out or maxPages is reached.
func (s *KidspotArt) Run(ctx context.Context, env Env, emit Emit) error {
	seen := map[string]bool{}
	next := s.startURL
	for page := 0; next != "" && page < s.maxPages && !seen[next]; page++ {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // cancellation is surfaced unchanged
		}
		seen[next] = true
		doc, err := fetchDocument(ctx, env, s.Name(), next)
		if err != nil {
			return err
		}
		items, nextURL := ParseKidspotPage(doc.Selection, next)
		for _, item := range items {
			item.ScrapedAt = env.now()
			if err := send(ctx, emit, item); err != nil {
				return err
			}
		}
		next = nextURL
	}
	return nil
}

// IsArtTitle reports whether title mentions an art keyword.
func IsArtTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, w := range artWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// ParseKidspotPage returns the art cards on the page and the next page URL, if any.
func ParseKidspotPage(doc *goquery.Selection, pageURL string) ([]activity.Activity, string) {
	var out []activity.Activity
	doc.Find("article.activity-card").Each(func(_ int, card *goquery.Selection) {
		title := strings.TrimSpace(card.Find("h3.card-title").First().Text())
		if !IsArtTitle(title) {
			return
		}
		href, _ := card.Find("a[href]").First().Attr("href")
		out = append(out, activity.Activity{
			Title:       title,
			Description: strings.TrimSpace(card.Find("p.card-description").First().Text()),
			Category:    "Art",
			SourceURL:   crawler.Resolve(pageURL, href),
			SourceName:  kidspotSource,
			Approved:    true,
		})
	})
	nextHref, _ := doc.Find("a.pagination__next").First().Attr("href")
	return out, crawler.Resolve(pageURL, nextHref)
}
