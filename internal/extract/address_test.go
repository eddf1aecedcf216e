package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAUAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Address
	}{
		{
			name:  "street comma locality",
			input: "12 Main Street, Point Cook VIC 3030",
			want:  Address{Street: "12 Main Street", Suburb: "Point Cook", State: "VIC", Postcode: "3030"},
		},
		{
			name:  "street without comma",
			input: "5 Bay St Point Cook VIC 3030",
			want:  Address{Street: "5 Bay St", Suburb: "Point Cook", State: "VIC", Postcode: "3030"},
		},
		{
			name:  "surrounded by noise",
			input: "Contact us 0390000000 123 Fake Street Kealba VIC 3021 Email",
			want:  Address{Street: "123 Fake Street", Suburb: "Kealba", State: "VIC", Postcode: "3021"},
		},
		{
			name:  "locality only",
			input: "Visit us at Point Cook VIC 3030",
			want:  Address{Suburb: "Point Cook", State: "VIC", Postcode: "3030"},
		},
		{
			name:  "state spelled out",
			input: "Sunshine, Victoria 3020",
			want:  Address{Suburb: "Sunshine", State: "VIC", Postcode: "3020"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseAUAddress(tc.input)
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}

	_, ok := ParseAUAddress("no address here")
	require.False(t, ok)
}

func TestAddressFull(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12 Main St, Point Cook VIC 3030",
		Address{Street: "12 Main St", Suburb: "Point Cook", State: "VIC", Postcode: "3030"}.Full())
	require.Equal(t, "Sunshine VIC", Address{Suburb: "Sunshine", State: "VIC"}.Full())
}

func TestHasAddressIndicators(t *testing.T) {
	t.Parallel()

	require.True(t, HasAddressIndicators("12 Main St 3030"))
	require.True(t, HasAddressIndicators("Sunshine Victoria 3020"))
	require.False(t, HasAddressIndicators("12 Main St"))
	require.False(t, HasAddressIndicators("hello"))
}

func TestCleanSuburb(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Taylors Lake", CleanSuburb("s"))
	require.Equal(t, "Point Cook", CleanSuburb("a,"))
	require.Equal(t, "Hoppers Crossing", CleanSuburb("hoppers crossing -"))
}

func TestSuburbFromContext(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Sunshine", SuburbFromContext("https://samuraikarate.com/sunshine-dojo-vic/", ""))
	require.Equal(t, "Hoppers Crossing", SuburbFromContext("https://example.org", "classes in Hoppers Crossing weekly"))
	require.Empty(t, SuburbFromContext("https://example.org", "classes in Richmond"))
}

func TestPostcodeHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, "3030", PostcodeForSuburb(" Point Cook "))
	require.Empty(t, PostcodeForSuburb("Richmond"))
	require.Equal(t, "Richmond", SuburbFromCommaAddress("12 Main St, Richmond VIC 3121, Australia"))
	require.Empty(t, SuburbFromCommaAddress("Richmond"))
	require.Equal(t, "3121", Postcode("Richmond VIC 3121"))
}
