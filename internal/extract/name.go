package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/kidssmart/internal/activity"
)

var invalidNameIndicators = []string{
	"welcome to", "home", "classes", "programs", "lessons", "learn", "explore",
	"imagine", "create", "australia", "favourite", "holiday", "camp", "404",
	"not found", "error", "2 weeks", "2 week", "menu", "cookie", "loading",
}

var nameSelectors = []string{
	"h1", ".business-name", ".company-name", ".site-title", ".logo-text",
	".header-title", ".navbar-brand", ".hero-title", ".page-title", "[class*=brand]",
}

var (
	leadingJunkName = regexp.MustCompile(`(?i)^[|\-–\s]*(2\s+WEEKS?|home|classes|melbourne|australia).*$`)
	taglineSuffix   = regexp.MustCompile(`(?i)\s*[|\-–]\s*(home|classes|programs|lessons).*$`)
	pipeTagline     = regexp.MustCompile(`\s+[|–]\s+.*$`)
	ptyLtd          = regexp.MustCompile(`(?i)\bpty\.?\s+ltd\.?`)
)

// ValidBusinessName rejects page-title boilerplate that is not a provider name.
func ValidBusinessName(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 100 {
		return false
	}
	lower := strings.ToLower(name)
	for _, indicator := range invalidNameIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}
	return true
}

// CleanBusinessName applies host overrides (keys are substrings of the page URL),
// strips taglines and falls back to a name derived from the domain.
func CleanBusinessName(name, pageURL string, overrides map[string]string) string {
	lowerURL := strings.ToLower(pageURL)
	for hostPart, override := range overrides {
		if hostPart != "" && strings.Contains(lowerURL, strings.ToLower(hostPart)) {
			return override
		}
	}
	name = CollapseSpace(name)
	if name == "" {
		return ""
	}
	cleaned := leadingJunkName.ReplaceAllString(name, "")
	cleaned = taglineSuffix.ReplaceAllString(cleaned, "")
	cleaned = pipeTagline.ReplaceAllString(cleaned, "")
	cleaned = ptyLtd.ReplaceAllString(cleaned, "Pty Ltd")
	cleaned = CollapseSpace(cleaned)
	if len(cleaned) < 3 {
		return NameFromDomain(pageURL)
	}
	return cleaned
}

// NameFromDomain humanizes the first label of the host: "gymnastics-unlimited.com.au"
// becomes "Gymnastics Unlimited".
func NameFromDomain(pageURL string) string {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	label := strings.Split(host, ".")[0]
	return activity.TitleCase(strings.ReplaceAll(label, "-", " "))
}

// NameFromDocument picks the provider name from headings, <title>, og:site_name
// and finally the domain.
func NameFromDocument(doc *goquery.Selection, pageURL string, overrides map[string]string) string {
	accept := func(candidate string) string {
		candidate = CollapseSpace(candidate)
		if !ValidBusinessName(candidate) {
			return ""
		}
		return CleanBusinessName(candidate, pageURL, overrides)
	}
	for _, selector := range nameSelectors {
		if name := accept(doc.Find(selector).First().Text()); name != "" {
			return name
		}
	}
	if name := accept(doc.Find("title").First().Text()); name != "" {
		return name
	}
	if name := accept(Attr(doc, `meta[property="og:site_name"]`, "content")); name != "" {
		return name
	}
	if name := CleanBusinessName("", pageURL, overrides); name != "" {
		return name
	}
	if name := NameFromDomain(pageURL); name != "" {
		return name
	}
	return "Unknown Provider"
}
