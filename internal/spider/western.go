package spider

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/activity"
	"github.com/JakeFAU/kidssmart/internal/crawler"
	"github.com/JakeFAU/kidssmart/internal/extract"
)

// WesternSuburbs scrapes a fixed list of provider home pages in Melbourne's west.
type WesternSuburbs struct {
	urls      []string
	overrides map[string]string
	headless  bool
}

// NewWesternSuburbs constructs the provider spider.
func NewWesternSuburbs(cfg WesternSuburbsConfig) *WesternSuburbs {
	overrides := cfg.NameOverrides
	if len(overrides) == 0 {
		overrides = DefaultNameOverrides
	}
	return &WesternSuburbs{
		urls:      orStrings(cfg.ProviderURLs, defaultProviderURLs),
		overrides: overrides,
		headless:  cfg.Headless,
	}
}

// Name implements Spider.
func (s *WesternSuburbs) Name() string { return "western_suburbs" }

// Description implements Spider.
func (s *WesternSuburbs) Description() string {
	return "Kids activity providers in Melbourne's western suburbs"
}

// Run visits each provider once and emits one activity per page.
func (s *WesternSuburbs) Run(ctx context.Context, env Env, emit Emit) error {
	var errs []error
	for _, providerURL := range s.urls {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // cancellation is surfaced unchanged
		}
		doc, err := s.load(ctx, env, providerURL)
		if err != nil {
			env.logger().Warn("provider page failed", zap.String("url", providerURL), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		item := ParseProviderPage(doc.Selection, providerURL, s.overrides)
		item.ScrapedAt = env.now()
		if err := send(ctx, emit, item); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func (s *WesternSuburbs) load(ctx context.Context, env Env, providerURL string) (*goquery.Document, error) {
	if !s.headless || env.Renderer == nil {
		return fetchDocument(ctx, env, s.Name(), providerURL)
	}
	result, err := env.Renderer.Render(ctx, crawler.RenderRequest{URL: providerURL, Spider: s.Name()})
	if err != nil {
		if errors.Is(err, crawler.ErrHeadlessDisabled) {
			return fetchDocument(ctx, env, s.Name(), providerURL)
		}
		return nil, fmt.Errorf("render %s: %w", providerURL, err)
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("render %s: empty result", providerURL)
	}
	return parseHTMLString(result.Pages[0], providerURL)
}

// ParseProviderPage applies the generic provider heuristics to a home page.
func ParseProviderPage(doc *goquery.Selection, providerURL string, overrides map[string]string) activity.Activity {
	text := extract.VisibleText(doc)
	item := activity.Activity{
		Title:       extract.NameFromDocument(doc, providerURL, overrides),
		Description: extract.DescriptionFromDocument(doc, providerURL),
		Category:    extract.DetectCategory(text, providerURL),
		Phone:       extract.PhoneFromDocument(doc),
		Email:       extract.EmailFromDocument(doc),
		Website:     providerURL,
		Features:    extract.Features(text),
		AgeRange:    extract.AgeRange(text),
		Schedule:    extract.Schedule(extract.Lines(text)),
		Cost:        extract.Cost(text),
		SourceURL:   providerURL,
		SourceName:  "western_suburbs",
		Approved:    true,
	}
	if addr, ok := extract.ParseAUAddress(text); ok {
		item.StreetAddress = addr.Street
		item.Suburb = addr.Suburb
		item.State = addr.State
		item.Postcode = addr.Postcode
	}
	if item.Suburb == "" {
		item.Suburb = extract.SuburbFromContext(providerURL, text)
	}
	if item.Postcode == "" {
		item.Postcode = extract.PostcodeForSuburb(item.Suburb)
	}
	if item.State == "" && item.Suburb != "" {
		item.State = "VIC"
	}
	return item
}
