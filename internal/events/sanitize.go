package events

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxTextLength = 512

var (
	strictPolicy     *bluemonday.Policy
	strictPolicyOnce sync.Once
)

func policy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// SanitizeText strips markup from client-supplied text and bounds its length.
// Entities escaped by the policy are decoded again so plain text round-trips.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	clean := html.UnescapeString(policy().Sanitize(s))
	clean = strings.TrimSpace(clean)

	if len(clean) > maxTextLength {
		clean = clean[:maxTextLength]
		for !utf8.ValidString(clean) {
			clean = clean[:len(clean)-1]
		}
	}
	return clean
}
