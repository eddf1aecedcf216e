package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/JakeFAU/kidssmart/internal/activity"
)

// MaxFeatures caps the feature list of one activity.
const MaxFeatures = 15

var (
	ageRangeExpr = regexp.MustCompile(`(?i)(?:Ages?|Kids?\s*(?:aged)?)[^\d]*(\d{1,2})[^\d]*(\d{1,2})?`)
	priceExpr    = regexp.MustCompile(`\$\s?\d+(?:\.\d{2})?`)
	weekdayExpr  = regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|wed|thu|fri|sat|sun)\b|\bHours\b|\bOpen\b`)

	featureAgeExprs = []*regexp.Regexp{
		regexp.MustCompile(`ages?\s*(\d+)\s*(?:-|–|to)\s*(\d+)`),
		regexp.MustCompile(`(\d+)\s*-\s*(\d+)\s*years`),
		regexp.MustCompile(`ages?\s*(\d+)\s*and\s*up`),
		regexp.MustCompile(`for\s+(\d+)\s*(?:-|–)\s*year`),
	}
)

var featureKeywords = []string{
	"after school", "holiday programs", "birthday parties", "private lessons",
	"beginner", "intermediate", "advanced", "trial class", "free trial",
	"qualified instructors", "small classes", "term classes", "daytime classes",
	"weekend classes", "group lessons", "individual tuition", "workshops",
	"summer camp", "winter program", "school holiday", "enrichment program",
	"certified", "licensed", "accredited", "experienced teachers",
	"art classes", "drawing", "painting", "creative", "craft", "pottery",
	"ballet", "jazz", "hip hop", "contemporary", "tap", "dance classes",
	"gymnastics", "sports", "fitness", "training", "coaching",
	"karate", "martial arts", "self defense", "self-defence",
	"coding", "programming", "robotics", "stem", "technology",
	"music lessons", "piano", "guitar", "singing", "violin",
	"swimming lessons", "water safety", "diving",
}

var featureMatcher = ahocorasick.NewStringMatcher(featureKeywords)

// PricingFeature is added when any dollar amount appears in the page.
const PricingFeature = "Various pricing options available"

// AgeRange returns "a–b" or "a+" from phrases like "Ages 5-12" or "kids aged 3". The second
// number is the next one after the first, however far away.
func AgeRange(text string) string {
	m := ageRangeExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[2] != "" {
		return m[1] + "–" + m[2]
	}
	return m[1] + "+"
}

// Cost classifies pricing: "Free", the first dollar amount, "Paid" or "".
func Cost(text string) string {
	if strings.Contains(strings.ToLower(text), "free") {
		return "Free"
	}
	if p := priceExpr.FindString(text); p != "" {
		return strings.ReplaceAll(p, " ", "")
	}
	if strings.Contains(text, "$") {
		return "Paid"
	}
	return ""
}

// Schedule returns the first line that looks like opening hours.
func Schedule(lines []string) string {
	for _, line := range lines {
		if weekdayExpr.MatchString(line) {
			return Truncate(CollapseSpace(line), 200)
		}
	}
	return ""
}

// Features lists keyword hits in text order of the keyword list, then age
// mentions, then a pricing note, capped at MaxFeatures.
func Features(text string) []string {
	lower := strings.ToLower(text)
	hits := featureMatcher.MatchThreadSafe([]byte(lower))
	matched := make([]bool, len(featureKeywords))
	for _, i := range hits {
		matched[i] = true
	}

	var out []string
	seen := map[string]bool{}
	add := func(f string) {
		if !seen[f] && len(out) < MaxFeatures {
			seen[f] = true
			out = append(out, f)
		}
	}
	for i, kw := range featureKeywords {
		if matched[i] {
			add(activity.TitleCase(kw))
		}
	}
	for _, expr := range featureAgeExprs {
		for _, m := range expr.FindAllStringSubmatch(lower, -1) {
			if len(m) == 3 && m[2] != "" {
				add(fmt.Sprintf("Ages %s-%s", m[1], m[2]))
			} else {
				add(fmt.Sprintf("Ages %s+", m[1]))
			}
		}
	}
	if priceExpr.MatchString(text) {
		add(PricingFeature)
	}
	return out
}

// BulletLines returns the lines starting with a bullet glyph, without the glyph.
func BulletLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "•") {
			continue
		}
		if v := strings.TrimSpace(strings.TrimPrefix(trimmed, "•")); v != "" {
			out = append(out, v)
		}
	}
	return out
}
