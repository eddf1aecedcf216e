package spider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kidssmart/internal/clock/system"
	collyfetcher "github.com/JakeFAU/kidssmart/internal/fetcher/colly"
)

const activitiesFixture = `<html><body>
<div class="listing-container">
  <div class="listing-title"><a href="/directory/listing/little-picassos/">Little Picassos</a></div>
  <div class="listing-address-1">12 Main Street</div>
  <div class="listing-address-location-bottom">Richmond</div>
  <div class="listing-address-listing-postcode">3121</div>
</div>
<div class="listing-container">
  <div class="listing-title"><a href="https://other.example/clay">Clay Club</a></div>
</div>
<div class="listing-container"><div class="listing-title"><a href="/x"> </a></div></div>
</body></html>`

func TestActivitiesCategory(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Arts And Crafts", ActivitiesCategory("https://a.test/directory/category/arts-and-crafts/"))
	require.Equal(t, "Unknown", ActivitiesCategory("https://a.test/directory/"))
}

func TestParseActivitiesListing(t *testing.T) {
	t.Parallel()

	pageURL := "https://www.activeactivities.com.au/directory/category/hobbies/"
	doc, err := parseHTMLString(activitiesFixture, pageURL)
	require.NoError(t, err)

	items := ParseActivitiesListing(doc.Selection, pageURL)
	require.Len(t, items, 2)
	first := items[0]
	require.Equal(t, "Little Picassos", first.Title)
	require.Equal(t, "12 Main Street", first.StreetAddress)
	require.Equal(t, "Richmond", first.Suburb)
	require.Equal(t, "3121", first.Postcode)
	require.Equal(t, "Hobbies", first.Category)
	require.Equal(t, "https://www.activeactivities.com.au/directory/listing/little-picassos/", first.SourceURL)
	require.Equal(t, "activities", first.SourceName)
	require.Equal(t, "https://other.example/clay", items[1].SourceURL)
}

func TestActivitiesRunContinuesPastFailedPage(t *testing.T) {
	t.Parallel()

	good := "https://a.test/directory/category/hobbies/"
	bad := "https://a.test/directory/category/dance/"
	f := newFakeFetcher(map[string]string{good: activitiesFixture})
	f.status[bad] = 500
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var c collector
	s := NewActivities(ActivitiesConfig{StartURLs: []string{bad, good}})
	err := s.Run(context.Background(), Env{Fetcher: f, Clock: system.Fixed(now)}, c.emit)
	require.Error(t, err)
	require.Equal(t, []string{"Little Picassos", "Clay Club"}, titles(c.items))
	require.Equal(t, now, c.items[0].ScrapedAt)
}

func TestActivitiesRunOverHTTP(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/directory/category/hobbies/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(activitiesFixture))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second})
	var c collector
	s := NewActivities(ActivitiesConfig{StartURLs: []string{srv.URL + "/directory/category/hobbies/"}})
	require.NoError(t, s.Run(context.Background(), Env{Fetcher: fetcher}, c.emit))
	require.Len(t, c.items, 2)
	require.Equal(t, srv.URL+"/directory/listing/little-picassos/", c.items[0].SourceURL)
}

func kidspotPage(next string, cards ...string) string {
	out := "<html><body>"
	for _, title := range cards {
		out += `<article class="activity-card"><a href="/activity/` + Slug(title) + `"><h3 class="card-title">` +
			title + `</h3></a><p class="card-description">About ` + title + `</p></article>`
	}
	if next != "" {
		out += `<a class="pagination__next" href="` + next + `">Next</a>`
	}
	return out + "</body></html>"
}

func TestParseKidspotPageFiltersArtTitles(t *testing.T) {
	t.Parallel()

	pageURL := "https://www.kidspot.com.au/things-to-do/activities/art-and-craft"
	doc, err := parseHTMLString(kidspotPage("?page=2", "Easy Paint Pouring", "Backyard Cricket", "Paper Craft Owls"), pageURL)
	require.NoError(t, err)

	items, next := ParseKidspotPage(doc.Selection, pageURL)
	require.Equal(t, []string{"Easy Paint Pouring", "Paper Craft Owls"}, titles(items))
	require.Equal(t, "Art", items[0].Category)
	require.Equal(t, kidspotSource, items[0].SourceName)
	require.Equal(t, "About Easy Paint Pouring", items[0].Description)
	require.Equal(t, "https://www.kidspot.com.au/activity/easy-paint-pouring", items[0].SourceURL)
	require.Equal(t, pageURL+"?page=2", next)
}

func TestKidspotRunStopsOnRepeatedPage(t *testing.T) {
	t.Parallel()

	start := "https://k.test/art"
	f := newFakeFetcher(map[string]string{
		start:             kidspotPage("/art?page=2", "Art One"),
		start + "?page=2": kidspotPage("/art", "Art Two"),
	})
	var c collector
	s := NewKidspotArt(KidspotConfig{StartURL: start, MaxPages: 10})
	require.NoError(t, s.Run(context.Background(), Env{Fetcher: f}, c.emit))
	require.Equal(t, []string{"Art One", "Art Two"}, titles(c.items))
	require.Len(t, f.urls(), 2)
}

func TestKidspotRunHonoursMaxPages(t *testing.T) {
	t.Parallel()

	start := "https://k.test/art"
	f := newFakeFetcher(map[string]string{
		start:             kidspotPage("/art?page=2", "Art One"),
		start + "?page=2": kidspotPage("/art?page=3", "Art Two"),
	})
	var c collector
	s := NewKidspotArt(KidspotConfig{StartURL: start, MaxPages: 1})
	require.NoError(t, s.Run(context.Background(), Env{Fetcher: f}, c.emit))
	require.Equal(t, []string{"Art One"}, titles(c.items))
}

const soccer5sHome = `<html><body>
<div class="elementor-widget-container"><h2>Junior League</h2><p>Weekly games</p><p>for ages 6-12.</p></div>
<div class="elementor-widget-container"><p>No heading here</p></div>
<div class="elementor-widget-container"><h3>Junior League</h3><p>Second block</p></div>
<a href="/holiday-clinics/">Clinics</a>
<a href="https://dandenong.soccer5s.com/holiday-clinics/#top">Clinics again</a>
<a href="https://www.soccer5s.com/about">About</a>
<a href="https://facebook.com/soccer5s">Facebook</a>
<a href="/">Home</a>
<a href="mailto:hi@soccer5s.com">Mail</a>
</body></html>`

func TestParseSoccer5sHomeKeepsSectionsDistinct(t *testing.T) {
	t.Parallel()

	pageURL := "https://dandenong.soccer5s.com/"
	doc, err := parseHTMLString(soccer5sHome, pageURL)
	require.NoError(t, err)

	items := ParseSoccer5sHome(doc.Selection, pageURL)
	require.Len(t, items, 2)
	require.Equal(t, "Weekly games for ages 6-12.", items[0].Description)
	require.Equal(t, pageURL+"#junior-league", items[0].SourceURL)
	require.Equal(t, pageURL+"#junior-league-2", items[1].SourceURL)
	require.Equal(t, "Sport", items[1].Category)

	links := Soccer5sLinks(doc.Selection, pageURL)
	require.Equal(t, []string{
		"https://dandenong.soccer5s.com/holiday-clinics/",
		"https://www.soccer5s.com/about",
	}, links)
}

func TestSoccer5sRunFollowsLinksOnce(t *testing.T) {
	t.Parallel()

	start := "https://dandenong.soccer5s.com/"
	f := newFakeFetcher(map[string]string{
		start: soccer5sHome,
		"https://dandenong.soccer5s.com/holiday-clinics/": `<h2>Holiday Clinics</h2><p>Skills sessions.</p>`,
	})
	f.status["https://www.soccer5s.com/about"] = 404

	var c collector
	s := NewSoccer5s(Soccer5sConfig{StartURL: start})
	err := s.Run(context.Background(), Env{Fetcher: f}, c.emit)
	require.Error(t, err)
	require.Equal(t, []string{"Junior League", "Junior League", "Holiday Clinics"}, titles(c.items))
	require.Equal(t, "https://dandenong.soccer5s.com/holiday-clinics/", c.items[2].SourceURL)

	limited := NewSoccer5s(Soccer5sConfig{StartURL: start, MaxLinks: 1})
	var c2 collector
	require.NoError(t, limited.Run(context.Background(), Env{Fetcher: f}, c2.emit))
	require.Len(t, c2.items, 3)
}

func TestSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "kids-5-a-side", Slug("  Kids 5-a-Side! "))
}
