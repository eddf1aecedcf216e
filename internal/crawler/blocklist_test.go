package crawler

import "testing"

func TestHostMatcher(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		m := NewHostMatcher([]string{"kidsbook.com.au"})
		if m == nil {
			t.Fatalf("expected matcher to be created")
		}
		if !m.Matches("kidsbook.com.au") || !m.Matches("www.kidsbook.com.au") {
			t.Fatalf("expected kidsbook.com.au to match")
		}
		if m.Matches("app.kidsbook.com.au") {
			t.Fatalf("did not expect subdomains to match exact entry")
		}
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		m := NewHostMatcher([]string{"*.facebook.com", ".instagram.com"})
		cases := []struct {
			host  string
			match bool
		}{
			{"m.facebook.com", true},
			{"facebook.com", true},
			{"instagram.com", true},
			{"example.com", false},
			{"", false},
		}
		for _, tc := range cases {
			if got := m.Matches(tc.host); got != tc.match {
				t.Fatalf("host %q match=%v, want %v", tc.host, got, tc.match)
			}
		}
	})

	t.Run("empty patterns", func(t *testing.T) {
		m := NewHostMatcher([]string{" ", ""})
		if m != nil {
			t.Fatalf("expected nil matcher")
		}
		if m.Matches("anything") {
			t.Fatalf("nil matcher should never match")
		}
	})
}
