package extract

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// General is returned when no category keyword matches.
const General = "General"

type keywordGroup struct {
	slug     string
	keywords []string
}

// Group order breaks score ties.
var categoryGroups = []keywordGroup{
	{"art", []string{"art", "painting", "drawing", "creative", "craft", "pottery", "studio", "canvas"}},
	{"dance", []string{"dance", "ballet", "jazz", "hip hop", "contemporary", "tap", "choreography"}},
	{"sport", []string{"sport", "gymnastics", "fitness", "training", "coaching", "exercise", "athletic"}},
	{"martialarts", []string{"martial arts", "karate", "taekwondo", "judo", "self defense", "self-defence", "belt", "dojo"}},
	{"stem", []string{"coding", "programming", "robotics", "stem", "technology", "computer", "science", "engineering"}},
	{"music", []string{"music", "piano", "guitar", "violin", "singing", "voice", "instrument"}},
	{"swimming", []string{"swim", "pool", "aquatic", "water safety", "diving"}},
}

var canonicalCategories = map[string]string{
	"art":         "Art",
	"arts":        "Art",
	"dance":       "Dance",
	"drama":       "Drama",
	"martialarts": "Martial Arts",
	"music":       "Music",
	"stem":        "STEM",
	"sport":       "Sport",
	"sports":      "Sport",
	"swimming":    "Swimming",
	"tutoring":    "Tutoring",
	"wellbeing":   "Wellbeing",
	"general":     General,
}

// SearchKeywords maps display categories to the search terms used to discover venues.
var SearchKeywords = []struct {
	Category string
	Keywords []string
}{
	{"Art", []string{"art", "gallery", "museum", "craft"}},
	{"Dance", []string{"dance", "ballet"}},
	{"Drama", []string{"drama", "theatre", "acting"}},
	{"Martial Arts", []string{"martial arts", "karate", "taekwondo", "judo"}},
	{"Music", []string{"music", "singing", "choir", "band"}},
	{"STEM", []string{"stem", "robotics", "coding", "science", "technology", "engineering"}},
	{"Sport", []string{"sport", "soccer", "basketball", "tennis", "cricket", "swimming"}},
	{"Tutoring", []string{"tutoring", "education", "school", "learning", "math", "english"}},
	{"Wellbeing", []string{"wellbeing", "mindfulness", "yoga", "fitness", "health"}},
}

// CategoryScorer scores text against the keyword groups in a single pass.
type CategoryScorer struct {
	textMatcher *ahocorasick.Matcher
	urlMatcher  *ahocorasick.Matcher
	owners      []int
}

// NewCategoryScorer builds matchers for the built-in keyword groups.
func NewCategoryScorer() *CategoryScorer {
	var textKeywords, urlKeywords []string
	var owners []int
	for gi, g := range categoryGroups {
		for _, kw := range g.keywords {
			textKeywords = append(textKeywords, kw)
			urlKeywords = append(urlKeywords, strings.ReplaceAll(kw, " ", ""))
			owners = append(owners, gi)
		}
	}
	return &CategoryScorer{
		textMatcher: ahocorasick.NewStringMatcher(textKeywords),
		urlMatcher:  ahocorasick.NewStringMatcher(urlKeywords),
		owners:      owners,
	}
}

var defaultScorer = NewCategoryScorer()

// Scores returns per-group scores: one point per keyword present in text, two per keyword in the URL.
func (c *CategoryScorer) Scores(text, pageURL string) map[string]int {
	scores := make(map[string]int, len(categoryGroups))
	for _, hit := range c.textMatcher.MatchThreadSafe([]byte(strings.ToLower(text))) {
		scores[categoryGroups[c.owners[hit]].slug]++
	}
	for _, hit := range c.urlMatcher.MatchThreadSafe([]byte(strings.ToLower(pageURL))) {
		scores[categoryGroups[c.owners[hit]].slug] += 2
	}
	return scores
}

// Detect returns the display name of the best-scoring group, or General.
func (c *CategoryScorer) Detect(text, pageURL string) string {
	scores := c.Scores(text, pageURL)
	best, bestScore := "", 0
	for _, g := range categoryGroups {
		if s := scores[g.slug]; s > bestScore {
			best, bestScore = g.slug, s
		}
	}
	if best == "" {
		return General
	}
	return CanonicalCategory(best)
}

// DetectCategory scores with the shared default scorer.
func DetectCategory(text, pageURL string) string {
	return defaultScorer.Detect(text, pageURL)
}

// CanonicalCategory maps a slug ("martialarts", "stem") to its display name.
// Unknown slugs are title-cased with dashes and underscores turned into spaces.
func CanonicalCategory(slug string) string {
	key := strings.ToLower(strings.TrimSpace(slug))
	if v, ok := canonicalCategories[key]; ok {
		return v
	}
	key = strings.NewReplacer("-", " ", "_", " ").Replace(key)
	if v, ok := canonicalCategories[strings.ReplaceAll(key, " ", "")]; ok {
		return v
	}
	return titleWords(key)
}

// CategoryForKeyword returns the display category a search keyword belongs to.
func CategoryForKeyword(keyword string) string {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	for _, entry := range SearchKeywords {
		for _, kw := range entry.Keywords {
			if kw == keyword {
				return entry.Category
			}
		}
	}
	return General
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
