package spider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/extract"
)

const (
	kidsbookNextSelector  = `button.chakra-button[aria-label="Next Page"]`
	kidsbookPhoneSelector = `a[href^="tel:"]`
	// kidsbookPlaceholderPhone is the site's own number, shown on every provider page.
	kidsbookPlaceholderPhone = "0512640919"
	kidsbookMaxAddressLen    = 200
	kidsbookMinParagraphLen  = 50
)

var (
	kidsbookLinkBlock = []string{"kidsbook", "facebook", "instagram", "google.com/maps"}
	kidsbookStreet    = regexp.MustCompile(`(?i)\b(st|rd|ave|dr|street|road|avenue|drive|lane|ln|ct|court|pl|place|cres|crescent|pde|parade|hwy|highway|blvd|way)\b`)
	kidsbookState     = regexp.MustCompile(`\b(VIC|Victoria)\b`)
	kidsbookYear      = regexp.MustCompile(`\d{4}`)
	kidsbookPostcode  = regexp.MustCompile(`\b\d{4}\b`)
)

// Kidsbook renders kidsbook.com.au listings in a headless browser.
type Kidsbook struct {
	baseURL    string
	phoneBase  string
	categories []string
	locations  []string
	maxPages   int
	phoneWait  time.Duration
}

// NewKidsbook constructs the kidsbook spider.
func NewKidsbook(cfg KidsbookConfig) *Kidsbook {
	return &Kidsbook{
		baseURL:    strings.TrimRight(orString(cfg.BaseURL, defaultKidsbookURL), "/"),
		phoneBase:  strings.TrimRight(orString(cfg.PhoneBaseURL, defaultKidsbookPhone), "/"),
		categories: orStrings(cfg.Categories, defaultKidsbookCategories),
		locations:  orStrings(cfg.Locations, defaultKidsbookLocations),
		maxPages:   orInt(cfg.MaxPages, defaultKidsbookPages),
		phoneWait:  orDuration(cfg.PhoneWait, defaultPhoneWait),
	}
}

// Name implements Spider.
func (s *Kidsbook) Name() string { return "kidsbook" }

// Description implements Spider.
func (s *Kidsbook) Description() string { return "kidsbook.com.au provider directory (headless)" }

// Run walks every category and location list, then renders each provider once.
func (s *Kidsbook) Run(ctx context.Context, env Env, emit Emit) error {
	if env.Renderer == nil {
		return fmt.Errorf("kidsbook: %w", crawler.ErrHeadlessDisabled)
	}
	seen := map[string]bool{}
	var errs []error
	for _, category := range s.categories {
		for _, location := range s.locations {
			listURL := fmt.Sprintf("%s/find/%s/%s", s.baseURL, category, location)
			log := env.logger().With(zap.String("list", listURL))
			result, err := env.Renderer.Render(ctx, crawler.RenderRequest{
				URL:          listURL,
				Spider:       s.Name(),
				NextSelector: kidsbookNextSelector,
				MaxPages:     s.maxPages,
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err() //nolint:wrapcheck // cancellation is surfaced unchanged
				}
				if errors.Is(err, crawler.ErrHeadlessDisabled) {
					return fmt.Errorf("kidsbook: %w", err)
				}
				log.Warn("list render failed", zap.Error(err))
				errs = append(errs, fmt.Errorf("render %s: %w", listURL, err))
				continue
			}
			for _, path := range KidsbookProviderPaths(result.Pages) {
				if seen[path] {
					continue
				}
				seen[path] = true
				item, err := s.provider(ctx, env, path, category)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err() //nolint:wrapcheck // cancellation is surfaced unchanged
					}
					log.Warn("provider skipped", zap.String("path", path), zap.Error(err))
					continue
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

func (s *Kidsbook) provider(ctx context.Context, env Env, path, category string) (activity.Activity, error) {
	pageURL := s.baseURL + path
	page, err := env.Renderer.Render(ctx, crawler.RenderRequest{URL: pageURL, Spider: s.Name()})
	if err != nil {
		return activity.Activity{}, fmt.Errorf("render provider: %w", err)
	}
	if len(page.Pages) == 0 {
		return activity.Activity{}, fmt.Errorf("render provider %s: empty result", pageURL)
	}
	doc, err := parseHTMLString(page.Pages[0], pageURL)
	if err != nil {
		return activity.Activity{}, err
	}

	var phoneDoc *goquery.Selection
	phoneURL := s.phoneBase + path + "?phone=yes"
	phonePage, err := env.Renderer.Render(ctx, crawler.RenderRequest{
		URL:          phoneURL,
		Spider:       s.Name(),
		WaitSelector: kidsbookPhoneSelector,
		WaitTimeout:  s.phoneWait,
	})
	switch {
	case err != nil:
		env.logger().Debug("phone reveal failed", zap.String("url", phoneURL), zap.Error(err))
	case len(phonePage.Pages) > 0:
		if pd, perr := parseHTMLString(phonePage.Pages[0], phoneURL); perr == nil {
			phoneDoc = pd.Selection
		}
	}

	item, ok := ParseKidsbookProvider(doc.Selection, phoneDoc, pageURL, category)
	if !ok {
		return activity.Activity{}, fmt.Errorf("provider %s: no name", pageURL)
	}
	return item, nil
}

// KidsbookProviderPaths returns the distinct /p/ links across rendered list pages, in page order.
func KidsbookProviderPaths(pages []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, markup := range pages {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			continue
		}
		doc.Find(`a[href^="/p/"]`).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			href = strings.SplitN(href, "#", 2)[0]
			if href != "" && !seen[href] {
				seen[href] = true
				out = append(out, href)
			}
		})
	}
	return out
}

// ParseKidsbookProvider extracts one provider. phoneDoc is the phone-reveal rendering and may be nil.
func ParseKidsbookProvider(doc, phoneDoc *goquery.Selection, pageURL, categorySlug string) (activity.Activity, bool) {
	name := extract.CollapseSpace(doc.Find(`h1[class*="chakra-heading"]`).First().Text())
	if name == "" {
		return activity.Activity{}, false
	}
	text := extract.VisibleText(doc)
	lines := extract.Lines(text)

	item := activity.Activity{
		Title:       name,
		Category:    extract.CanonicalCategory(categorySlug),
		Phone:       kidsbookPhone(doc, phoneDoc, text),
		Email:       extract.EmailFromDocument(doc),
		Website:     KidsbookWebsite(doc),
		Features:    extract.BulletLines(lines),
		Description: kidsbookDescription(doc),
		AgeRange:    extract.AgeRange(text),
		SourceURL:   pageURL,
		SourceName:  "kidsbook",
		Approved:    true,
	}
	if raw := KidsbookAddress(doc); raw != "" {
		if addr, ok := extract.ParseAUAddress(raw); ok {
			item.StreetAddress = addr.Street
			item.Suburb = addr.Suburb
			item.State = addr.State
			item.Postcode = addr.Postcode
		} else {
			item.StreetAddress = raw
			item.Postcode = kidsbookPostcode.FindString(raw)
		}
	}
	return item, true
}

func kidsbookPhone(doc, phoneDoc *goquery.Selection, text string) string {
	for _, sel := range []*goquery.Selection{phoneDoc, doc} {
		if sel == nil {
			continue
		}
		var phone string
		sel.Find(kidsbookPhoneSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			candidate := strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
			if extract.ValidAUPhone(candidate) && !strings.Contains(strings.ReplaceAll(candidate, " ", ""), kidsbookPlaceholderPhone) {
				phone = extract.FormatPhone(candidate)
				return false
			}
			return true
		})
		if phone != "" {
			return phone
		}
	}
	return extract.PhoneFromText(text, kidsbookPlaceholderPhone)
}

// KidsbookWebsite returns the provider's own site: the first external http link that is
// not kidsbook itself or a social/maps link.
func KidsbookWebsite(doc *goquery.Selection) string {
	var website string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !crawler.IsHTTP(href) {
			return true
		}
		lower := strings.ToLower(href)
		for _, blocked := range kidsbookLinkBlock {
			if strings.Contains(lower, blocked) {
				return true
			}
		}
		if u, err := url.Parse(href); err != nil || u.Host == "" {
			return true
		}
		website = href
		return false
	})
	return website
}

// KidsbookAddress returns the first chakra text paragraph that reads like a Victorian address.
func KidsbookAddress(doc *goquery.Selection) string {
	var address string
	doc.Find("p.chakra-text").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := extract.CollapseSpace(p.Text())
		if t == "" || len(t) > kidsbookMaxAddressLen || !kidsbookState.MatchString(t) {
			return true
		}
		if kidsbookPostcode.MatchString(t) || kidsbookStreet.MatchString(t) {
			address = t
			return false
		}
		return true
	})
	return address
}

func kidsbookDescription(doc *goquery.Selection) string {
	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		t := extract.CollapseSpace(p.Text())
		if len(t) <= kidsbookMinParagraphLen || strings.HasPrefix(t, "•") || kidsbookYear.MatchString(t) {
			return
		}
		parts = append(parts, t)
	})
	return strings.Join(parts, " ")
}
