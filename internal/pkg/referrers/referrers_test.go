package referrers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		hostname string
		want     Source
		found    bool
	}{
		{"google.com", Source{"Google", MediumOrganic}, true},
		{"www.google.de", Source{"Google", MediumOrganic}, true},
		{"m.facebook.com", Source{"Facebook", MediumSocial}, true},
		{"lm.facebook.com", Source{"Facebook", MediumSocial}, true},
		{"mail.google.com", Source{"Gmail", MediumEmail}, true},
		{"news.ycombinator.com", Source{"Hacker News", MediumReferral}, true},
		{"www.g2.com", Source{"G2", MediumReferral}, true},
		{"LinkedIn.com", Source{"LinkedIn", MediumSocial}, true},
		{"example.com", Source{}, false},
		{"com", Source{}, false},
		{"", Source{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			got, ok := Lookup(tt.hostname)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		{"x.com", "X/Twitter"},
		{"mobile.twitter.com", "X/Twitter"},
		{"www.reddit.com", "Reddit"},
		{"example.com", "Example.com"},
		{"www.example.com", "Example.com"},
		{"GOOGLE.COM", "Google"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.expected, FriendlyName(tt.hostname))
		})
	}
}
