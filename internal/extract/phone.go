package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Candidate patterns, most specific first.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(0[2-8]\)\s?\d{4}\s?\d{4}`),
	regexp.MustCompile(`\+61\s?[2-8]\s?\d{4}\s?\d{4}`),
	regexp.MustCompile(`\+61\s?4\d{2}\s?\d{3}\s?\d{3}`),
	regexp.MustCompile(`\b0[2-8]\s?\d{4}\s?\d{4}\b`),
	regexp.MustCompile(`\b04\d{2}\s?\d{3}\s?\d{3}\b`),
	regexp.MustCompile(`\b1[38]00\s?\d{3}\s?\d{3}\b`),
	regexp.MustCompile(`\+61\d{9}`),
	regexp.MustCompile(`\b0\d{9}\b`),
}

var validPhonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\+61[2-8]\d{8}$`),
	regexp.MustCompile(`^0[2-8]\d{8}$`),
	regexp.MustCompile(`^0\d{9}$`),
	regexp.MustCompile(`^1[38]00\d{6}$`),
	regexp.MustCompile(`^\+61\d{9}$`),
}

var phoneContactSelectors = []string{
	".contact-phone", ".phone", ".contact-number",
	".contact-info", ".contact-details", ".footer-contact",
	`[class*="contact"]`, `[class*="phone"]`,
	"footer", ".footer", "header", ".header", ".call-now",
}

var phoneHiddenSelectors = `[style*="display: none"], [style*="visibility: hidden"], .hidden, .sr-only`

func phoneDigits(s string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidAUPhone reports whether s looks like an Australian landline, mobile or 1300/1800 number.
func ValidAUPhone(s string) bool {
	digits := phoneDigits(s)
	for _, re := range validPhonePatterns {
		if re.MatchString(digits) {
			return true
		}
	}
	return false
}

// FormatPhone renders a ten-digit number with a leading 0 as "(0X) XXXX XXXX"
// and a +61 number as "+61 X XXXX XXXX". Anything else is returned unchanged.
func FormatPhone(s string) string {
	d := phoneDigits(s)
	switch {
	case strings.HasPrefix(d, "0") && len(d) == 10:
		return "(" + d[0:2] + ") " + d[2:6] + " " + d[6:10]
	case strings.HasPrefix(d, "+61") && len(d) == 12:
		return "+61 " + d[3:4] + " " + d[4:8] + " " + d[8:12]
	default:
		return s
	}
}

// FindPhones returns every valid number found in text, in order of appearance per pattern.
func FindPhones(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, re := range phonePatterns {
		for _, m := range re.FindAllString(text, -1) {
			d := phoneDigits(m)
			if seen[d] || !ValidAUPhone(d) {
				continue
			}
			seen[d] = true
			out = append(out, m)
		}
	}
	return out
}

// PhoneFromText returns the first valid formatted number in text that is not excluded.
func PhoneFromText(text string, exclude ...string) string {
	for _, p := range FindPhones(text) {
		if isExcludedPhone(p, exclude) {
			continue
		}
		return FormatPhone(p)
	}
	return ""
}

// PhoneFromDocument searches tel: links, contact blocks, data attributes, hidden
// elements and finally the whole page text.
func PhoneFromDocument(doc *goquery.Selection, exclude ...string) string {
	var phone string
	doc.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		candidate := strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
		if ValidAUPhone(candidate) && !isExcludedPhone(candidate, exclude) {
			phone = FormatPhone(candidate)
			return false
		}
		return true
	})
	if phone != "" {
		return phone
	}
	for _, selector := range phoneContactSelectors {
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			phone = PhoneFromText(VisibleText(s), exclude...)
			return phone == ""
		})
		if phone != "" {
			return phone
		}
	}
	doc.Find("[data-phone], [data-number], [data-tel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, name := range []string{"data-phone", "data-number", "data-tel"} {
			if v, ok := s.Attr(name); ok && ValidAUPhone(v) && !isExcludedPhone(v, exclude) {
				phone = FormatPhone(v)
				return false
			}
		}
		return true
	})
	if phone != "" {
		return phone
	}
	if phone = PhoneFromText(VisibleText(doc.Find("body")), exclude...); phone != "" {
		return phone
	}
	doc.Find(phoneHiddenSelectors).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		phone = PhoneFromText(s.Text(), exclude...)
		return phone == ""
	})
	return phone
}

func isExcludedPhone(p string, exclude []string) bool {
	d := phoneDigits(p)
	for _, e := range exclude {
		if phoneDigits(e) == d {
			return true
		}
	}
	return false
}
