package activity

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	got := Normalize(Activity{
		Title:         "  Wild   at Art \n Kids ",
		Suburb:        "point cook",
		Postcode:      "3030",
		StreetAddress: " 12 Main St, ",
		Email:         "Hello@WildAtArt.com.au",
		Website:       "wildatartkids.com.au",
		SourceURL:     "https://wildatartkids.com.au/",
		SourceName:    " western_suburbs ",
		Features:      []string{"Holiday programs", "holiday programs", " ", "Ages 5-12"},
	})

	require.Equal(t, "Wild at Art Kids", got.Title)
	require.Equal(t, "Point Cook", got.Suburb)
	require.Equal(t, "VIC", got.State)
	require.Equal(t, "12 Main St", got.StreetAddress)
	require.Equal(t, "hello@wildatart.com.au", got.Email)
	require.Empty(t, got.Website, "scheme-less website should be cleared")
	require.Equal(t, "https://wildatartkids.com.au/", got.SourceURL)
	require.Equal(t, "western_suburbs", got.SourceName)
	require.Equal(t, []string{"Holiday programs", "Ages 5-12"}, got.Features)
}

func TestNormalizeClearsInvalidValues(t *testing.T) {
	t.Parallel()

	got := Normalize(Activity{
		Title:       "x",
		Postcode:    "30",
		Email:       "not-an-email",
		ImageURL:    "javascript:alert(1)",
		Description: strings.Repeat("a", 1200),
	})
	require.Empty(t, got.Postcode)
	require.Empty(t, got.State)
	require.Empty(t, got.Email)
	require.Empty(t, got.ImageURL)
	require.Equal(t, 1000, len([]rune(got.Description)))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Activity{SourceName: "art"}.Validate(), ErrMissingTitle)
	require.ErrorIs(t, Activity{Title: "Paint Club"}.Validate(), ErrMissingSource)
	require.NoError(t, Activity{Title: "Paint Club", SourceName: "art"}.Validate())
}

func TestDedupKeyAndAddress(t *testing.T) {
	t.Parallel()

	a := Activity{Title: "Soccer Stars", Suburb: "Dandenong", State: "VIC", Postcode: "3175", StreetAddress: "1 Pitch Rd"}
	require.Equal(t, "soccer stars|dandenong", a.DedupKey())
	require.Equal(t, "1 Pitch Rd, Dandenong VIC 3175", a.Address())
	require.Equal(t, "Dandenong", Activity{Suburb: "Dandenong"}.Address())
}

func TestMergeMissingNeverOverwrites(t *testing.T) {
	t.Parallel()

	existing := Activity{Title: "Codecamp", Phone: "(03) 9000 0000"}
	merged := existing.MergeMissing(Activity{Phone: "1300 000 000", Email: "hi@codecamp.com.au"})
	require.Equal(t, "(03) 9000 0000", merged.Phone)
	require.Equal(t, "hi@codecamp.com.au", merged.Email)
}

func TestUnmarshalAcceptsLegacyKeys(t *testing.T) {
	t.Parallel()

	var a Activity
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Park","activity_type":"Playground","address":"1 Rd","image":"https://x/y.png"}`), &a))
	require.Equal(t, "Playground", a.Category)
	require.Equal(t, "1 Rd", a.StreetAddress)
	require.Equal(t, "https://x/y.png", a.ImageURL)

	var b Activity
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Park","category":"Sport","activity_type":"Playground"}`), &b))
	require.Equal(t, "Sport", b.Category)
}
