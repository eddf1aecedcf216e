package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	plainEmail      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	obfuscatedEmail = regexp.MustCompile(`(?i)([\w.-]+)\s*(?:\[at\]|\(\s*at\s*\)|\s at\s)\s*([\w.-]+\.\w+)`)
)

var invalidEmailFragments = []string{
	".png", ".jpg", ".jpeg", ".gif", ".pdf", ".webp", ".svg", ".ico", ".css", ".js", ".woff", ".ttf",
	"@example.", "@test.", "@domain.", "@placeholder.", "@sample.", "noreply@", "no-reply@",
}

// CleanEmail strips mailto:, query strings and fragments and lower-cases the address.
func CleanEmail(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "mailto:"), "MAILTO:")
	if i := strings.IndexAny(s, "?&#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail filters asset names, placeholder domains and no-reply mailboxes.
func ValidEmail(s string) bool {
	e := CleanEmail(s)
	if len(e) <= 5 || strings.ContainsAny(e, " \t") || strings.Contains(e, "..") {
		return false
	}
	at := strings.Index(e, "@")
	if at <= 0 || at != strings.LastIndex(e, "@") || !strings.Contains(e[at:], ".") {
		return false
	}
	for _, frag := range invalidEmailFragments {
		if strings.Contains(e, frag) {
			return false
		}
	}
	return true
}

// FindEmails returns valid addresses in text, including "name [at] host.com" forms.
func FindEmails(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(e string) {
		e = CleanEmail(e)
		if ValidEmail(e) && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, m := range plainEmail.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range obfuscatedEmail.FindAllStringSubmatch(text, -1) {
		add(m[1] + "@" + m[2])
	}
	return out
}

// EmailFromDocument checks mailto: links, then the raw markup (which includes inline scripts).
func EmailFromDocument(doc *goquery.Selection) string {
	var email string
	doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if e := CleanEmail(href); ValidEmail(e) {
			email = e
			return false
		}
		return true
	})
	if email != "" {
		return email
	}
	markup, err := goquery.OuterHtml(doc)
	if err != nil {
		markup = doc.Text()
	}
	if found := FindEmails(markup); len(found) > 0 {
		return found[0]
	}
	return ""
}
