package extract

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/kidssmart/internal/activity"
)

// Address is a parsed Australian street address.
type Address struct {
	Street   string
	Suburb   string
	State    string
	Postcode string
}

// Full renders the address on one line.
func (a Address) Full() string {
	locality := CollapseSpace(strings.Join([]string{a.Suburb, a.State, a.Postcode}, " "))
	if a.Street == "" {
		return locality
	}
	return a.Street + ", " + locality
}

var (
	localityExpr   = regexp.MustCompile(`\b((?:[A-Za-z'][A-Za-z'.-]*\s+){0,5}[A-Za-z'][A-Za-z'.-]*)\s*,?\s+(VIC|(?i:victoria)|NSW|QLD|WA|SA|TAS|ACT|NT)\.?,?\s+(\d{4})\b`)
	streetNumber   = regexp.MustCompile(`(?i)(?:(?:shop|unit|suite|level)\s*\d+[a-z]?\s*[,/]?\s*)?\d+[a-z]?(?:[/-]\d+[a-z]?)?\s*$`)
	numberedStreet = regexp.MustCompile(`(?i)^(?:(?:shop|unit|suite|level)\s*\d+[a-z]?\s*[,/]?\s*)?\d+[a-z]?(?:[/-]\d+[a-z]?)?\s+[a-z]`)
	fourDigits     = regexp.MustCompile(`\b\d{4}\b`)
	streetWord     = regexp.MustCompile(`(?i)\b(street|st|road|rd|avenue|ave|drive|dr|lane|ln|court|ct|place|pl|boulevard|blvd|crescent|cres|way|parade|pde|highway|hwy|circuit|cct|close|cl)\b\.?`)
	stateWord      = regexp.MustCompile(`(?i)\b(vic|victoria)\b`)
	stateToken     = regexp.MustCompile(`\b(VIC|(?i:victoria)|NSW|QLD|WA|SA|TAS|ACT|NT)\b`)
	trailingPunct  = regexp.MustCompile(`[,\-–\s]+$`)
)

var suburbAliases = map[string]string{
	"s": "Taylors Lake",
	"a": "Point Cook",
}

var suburbURLSlugs = []struct{ slug, suburb string }{
	{"caroline-springs", "Caroline Springs"},
	{"point-cook", "Point Cook"},
	{"pointcook", "Point Cook"},
	{"sunshine", "Sunshine"},
	{"truganina", "Truganina"},
	{"taylors-lake", "Taylors Lake"},
	{"taylorslake", "Taylors Lake"},
	{"kealba", "Kealba"},
	{"werribee", "Werribee"},
}

var westernSuburbs = compileWordList([]string{
	"caroline springs", "point cook", "truganina", "sunshine",
	"taylors lake", "werribee", "hoppers crossing", "tarneit",
	"kealba", "brooklyn",
})

type wordPattern struct {
	word string
	re   *regexp.Regexp
}

func compileWordList(words []string) []wordPattern {
	out := make([]wordPattern, 0, len(words))
	for _, w := range words {
		out = append(out, wordPattern{word: w, re: regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)})
	}
	return out
}

var suburbPostcodes = map[string]string{
	"caroline springs": "3023",
	"point cook":       "3030",
	"sunshine":         "3020",
	"truganina":        "3029",
	"werribee":         "3030",
	"hoppers crossing": "3029",
	"tarneit":          "3029",
	"taylors lake":     "3038",
	"kealba":           "3021",
}

// HasAddressIndicators reports whether text mentions a street type or the state and contains a postcode.
func HasAddressIndicators(text string) bool {
	return (streetWord.MatchString(text) || stateWord.MatchString(text)) && fourDigits.MatchString(text)
}

// ParseAUAddress finds the first "<street>, <suburb> <STATE> <postcode>" in text.
// The street is kept only when it carries a street number.
func ParseAUAddress(text string) (Address, bool) {
	text = CollapseSpace(text)
	loc := localityExpr.FindStringSubmatchIndex(text)
	if loc == nil {
		return Address{}, false
	}
	locality := text[loc[2]:loc[3]]
	addr := Address{
		State:    normalizeState(text[loc[4]:loc[5]]),
		Postcode: text[loc[6]:loc[7]],
	}
	prefix := strings.TrimSpace(text[:loc[2]])

	if end := lastStreetEnd(locality); end > 0 && strings.TrimSpace(locality[end:]) != "" {
		// "5 Bay St Point Cook": the street name leaked into the locality run.
		if number := streetNumber.FindString(prefix); number != "" {
			addr.Street = CollapseSpace(number + " " + locality[:end])
		}
		locality = strings.TrimSpace(locality[end:])
	} else {
		chunks := strings.Split(trailingPunct.ReplaceAllString(prefix, ""), ",")
		candidate := strings.TrimSpace(chunks[len(chunks)-1])
		if numberedStreet.MatchString(candidate) && len(candidate) <= 80 {
			addr.Street = candidate
		}
	}
	addr.Suburb = CleanSuburb(trailingCapitalized(locality))
	return addr, true
}

// trailingCapitalized keeps the last run of (at most three) capitalized words, dropping
// lead-ins such as "Visit us at".
func trailingCapitalized(s string) string {
	words := strings.Fields(s)
	start := len(words)
	for start > 0 && len(words)-start < 3 {
		w := words[start-1]
		if w == "" || !(w[0] >= 'A' && w[0] <= 'Z') {
			break
		}
		start--
	}
	if start == len(words) {
		return s
	}
	return strings.Join(words[start:], " ")
}

func lastStreetEnd(s string) int {
	idx := streetWord.FindAllStringIndex(s, -1)
	if len(idx) == 0 {
		return -1
	}
	return idx[len(idx)-1][1]
}

func normalizeState(s string) string {
	if strings.EqualFold(s, "victoria") {
		return "VIC"
	}
	return strings.ToUpper(s)
}

// CleanSuburb trims punctuation, repairs known truncations and title-cases the name.
func CleanSuburb(s string) string {
	s = trailingPunct.ReplaceAllString(strings.TrimSpace(s), "")
	if alias, ok := suburbAliases[strings.ToLower(s)]; ok {
		return alias
	}
	return activity.TitleCase(s)
}

// SuburbFromContext guesses a western-suburbs locality from URL slugs, then from page text.
func SuburbFromContext(pageURL, text string) string {
	u := strings.ToLower(pageURL)
	for _, m := range suburbURLSlugs {
		if strings.Contains(u, m.slug) {
			return m.suburb
		}
	}
	lower := strings.ToLower(text)
	for _, suburb := range westernSuburbs {
		if suburb.re.MatchString(lower) {
			return activity.TitleCase(suburb.word)
		}
	}
	return ""
}

// PostcodeForSuburb returns the known postcode for a western-suburbs locality.
func PostcodeForSuburb(suburb string) string {
	return suburbPostcodes[strings.ToLower(strings.TrimSpace(suburb))]
}

// SuburbFromCommaAddress takes the second-to-last comma part of an address such as
// "12 Main St, Richmond VIC 3121, Australia" and strips state and postcode from it.
func SuburbFromCommaAddress(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return ""
	}
	part := strings.TrimSpace(parts[len(parts)-2])
	part = fourDigits.ReplaceAllString(part, "")
	part = stateToken.ReplaceAllString(part, "")
	return CollapseSpace(part)
}

// Postcode returns the first four-digit number in text.
func Postcode(text string) string {
	return fourDigits.FindString(text)
}
