package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanEmail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "info@site.com.au", CleanEmail("mailto:Info@Site.com.au?subject=hi"))
	require.Equal(t, "a@b.com", CleanEmail(" a@b.com#top "))
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	require.True(t, ValidEmail("hello@kids.com.au"))
	require.False(t, ValidEmail("logo@2x.png"))
	require.False(t, ValidEmail("noreply@site.com"))
	require.False(t, ValidEmail("you@example.com"))
	require.False(t, ValidEmail("a@b.c"))
	require.False(t, ValidEmail("a..b@site.com"))
	require.False(t, ValidEmail("nobody"))
}

func TestFindEmails(t *testing.T) {
	t.Parallel()

	got := FindEmails("Email: info [at] kidsclub.com.au or hello@fun.org, again hello@fun.org")
	require.Equal(t, []string{"hello@fun.org", "info@kidsclub.com.au"}, got)
}

func TestEmailFromDocument(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<body><p>write to team@other.com</p><a href="mailto:Bookings@Studio.com.au">mail</a></body>`)
	require.Equal(t, "bookings@studio.com.au", EmailFromDocument(doc))

	doc = parseDoc(t, `<body><img src="icon@2x.png"><p>write to team@other.com</p></body>`)
	require.Equal(t, "team@other.com", EmailFromDocument(doc))
}
