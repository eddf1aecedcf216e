package spider

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/extract"
)

var slugJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Soccer5s scrapes the soccer5s home page sections and the same-site pages it links to.
type Soccer5s struct {
	startURL string
	maxLinks int
}

// NewSoccer5s constructs the soccer5s spider.
func NewSoccer5s(cfg Soccer5sConfig) *Soccer5s {
	return &Soccer5s{
		startURL: orString(cfg.StartURL, defaultSoccer5sURL),
		maxLinks: orInt(cfg.MaxLinks, defaultSoccer5sLinks),
	}
}

// Name implements Spider.
func (s *Soccer5s) Name() string { return "soccer5s" }

// Description implements Spider.
func (s *Soccer5s) Description() string { return "Soccer5s Dandenong programs and leagues" }

// Run parses the home page, then visits each linked page once (depth 1).
func (s *Soccer5s) Run(ctx context.Context, env Env, emit Emit) error {
	doc, err := fetchDocument(ctx, env, s.Name(), s.startURL)
	if err != nil {
		return err
	}
	for _, item := range ParseSoccer5sHome(doc.Selection, s.startURL) {
		item.ScrapedAt = env.now()
		if err := send(ctx, emit, item); err != nil {
			return err
		}
	}
	links := Soccer5sLinks(doc.Selection, s.startURL)
	if len(links) > s.maxLinks {
		links = links[:s.maxLinks]
	}
	var errs []error
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // cancellation is surfaced unchanged
		}
		page, err := fetchDocument(ctx, env, s.Name(), link)
		if err != nil {
			env.logger().Warn("linked page failed", zap.String("url", link), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		item, ok := ParseSoccer5sPage(page.Selection, link)
		if !ok {
			continue
		}
		item.ScrapedAt = env.now()
		if err := send(ctx, emit, item); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// Slug lower-cases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	return strings.Trim(slugJunk.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func joinedParagraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := extract.CollapseSpace(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// ParseSoccer5sHome turns each titled elementor widget into an item whose source URL
// carries a #slug fragment, keeping sections of the same page distinct.
func ParseSoccer5sHome(doc *goquery.Selection, pageURL string) []activity.Activity {
	base := strings.SplitN(pageURL, "#", 2)[0]
	used := map[string]int{}
	var out []activity.Activity
	doc.Find("div.elementor-widget-container").Each(func(_ int, section *goquery.Selection) {
		title := extract.CollapseSpace(section.Find("h2, h3").First().Text())
		if title == "" {
			return
		}
		slug := Slug(title)
		used[slug]++
		if n := used[slug]; n > 1 {
			slug += "-" + strconv.Itoa(n)
		}
		out = append(out, activity.Activity{
			Title:       title,
			Description: joinedParagraphs(section),
			Category:    "Sport",
			SourceURL:   base + "#" + slug,
			SourceName:  "soccer5s",
			Approved:    true,
		})
	})
	return out
}

// Soccer5sLinks returns distinct same-site links, excluding the page itself.
func Soccer5sLinks(doc *goquery.Selection, pageURL string) []string {
	self := strings.TrimSuffix(strings.SplitN(pageURL, "#", 2)[0], "/")
	seen := map[string]bool{self: true}
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs := crawler.Resolve(pageURL, href)
		if abs == "" {
			return
		}
		abs = strings.SplitN(abs, "#", 2)[0]
		host := crawler.Hostname(abs)
		if host != "soccer5s.com" && !strings.HasSuffix(host, ".soccer5s.com") {
			return
		}
		key := strings.TrimSuffix(abs, "/")
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, abs)
	})
	return out
}

// ParseSoccer5sPage reads the heading and paragraph text of a linked page.
func ParseSoccer5sPage(doc *goquery.Selection, pageURL string) (activity.Activity, bool) {
	title := extract.CollapseSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = extract.CollapseSpace(doc.Find("h2").First().Text())
	}
	if title == "" {
		return activity.Activity{}, false
	}
	return activity.Activity{
		Title:       title,
		Description: joinedParagraphs(doc),
		Category:    "Sport",
		SourceURL:   pageURL,
		SourceName:  "soccer5s",
		Approved:    true,
	}, true
}
