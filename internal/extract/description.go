package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// DescriptionLimit is the rune limit applied to page-derived descriptions.
const DescriptionLimit = 300

// DefaultDescription is used when a page yields nothing better.
const DefaultDescription = "Quality programs and activities for children and families."

var descriptionSelectors = []string{
	".hero-text", ".intro", ".description", ".about", ".hero p",
	".content p", ".main p", "main p", ".entry-content p",
	".lead", ".subtitle", ".tagline", ".summary",
	`[class*="description"]`, `[class*="about"]`, `[class*="intro"]`,
}

var descriptionSkip = []string{"menu", "home", "contact", "phone", "email", "address", "login", "sign up"}

var paragraphSkip = []string{"cookie", "privacy", "terms"}

// MetaDescription returns the meta or og description when it is longer than 20 characters.
func MetaDescription(doc *goquery.Selection) string {
	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if v := CollapseSpace(Attr(doc, selector, "content")); len(v) > 20 {
			return v
		}
	}
	return ""
}

// DescriptionFromDocument walks meta tags, summary selectors, the readability
// excerpt, the first substantial paragraph and the page title.
func DescriptionFromDocument(doc *goquery.Selection, pageURL string) string {
	if v := MetaDescription(doc); v != "" {
		return Truncate(v, DescriptionLimit)
	}
	for _, selector := range descriptionSelectors {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := CollapseSpace(VisibleText(s))
			n := utf8.RuneCountInString(text)
			if n <= 30 || n >= 400 || containsAny(strings.ToLower(text), descriptionSkip) {
				return true
			}
			found = text
			return false
		})
		if found != "" {
			return Truncate(found, DescriptionLimit)
		}
	}
	if v := readabilityExcerpt(doc, pageURL); v != "" {
		return Truncate(v, DescriptionLimit)
	}
	var paragraph string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := CollapseSpace(VisibleText(s))
		n := utf8.RuneCountInString(text)
		if n <= 50 || n >= 400 || strings.HasPrefix(text, "©") || containsAny(strings.ToLower(text), paragraphSkip) {
			return true
		}
		paragraph = text
		return false
	})
	if paragraph != "" {
		return Truncate(paragraph, DescriptionLimit)
	}
	if title := CleanBusinessName(doc.Find("title").First().Text(), pageURL, nil); title != "" {
		return Truncate(title+" - providing quality programs and activities.", DescriptionLimit)
	}
	return DefaultDescription
}

func readabilityExcerpt(doc *goquery.Selection, pageURL string) string {
	markup, err := goquery.OuterHtml(doc)
	if err != nil || markup == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(markup), base)
	if err != nil {
		return ""
	}
	excerpt := CollapseSpace(article.Excerpt)
	if utf8.RuneCountInString(excerpt) < 50 {
		return ""
	}
	return excerpt
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
