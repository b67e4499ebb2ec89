package referrers

import (
	"net/url"
	"strings"
)

// Traffic mediums assigned to a session's entry.
const (
	MediumDirect   = "direct"
	MediumOrganic  = "organic"
	MediumSocial   = "social"
	MediumEmail    = "email"
	MediumReferral = "referral"
	MediumPaid     = "paid"
)

// SourceDirect is the source recorded when there is no referrer and no UTM tags.
const SourceDirect = "Direct"

var paidMediums = map[string]bool{
	"cpc": true, "ppc": true, "paid": true, "paidsearch": true, "paid_social": true, "display": true,
}

// Attribution is the classified origin of a visit.
type Attribution struct {
	Source string
	Medium string
}

// Classify derives the source and medium of a visit. UTM tags win over the
// referrer. Known hosts carry their own medium, any other referrer is a
// referral and nothing at all is direct.
func Classify(referrer, utmSource, utmMedium string) Attribution {
	utmSource = strings.TrimSpace(utmSource)
	utmMedium = strings.ToLower(strings.TrimSpace(utmMedium))

	if utmSource != "" {
		medium := utmMedium
		switch {
		case medium == "":
			medium = MediumReferral
		case paidMediums[medium]:
			medium = MediumPaid
		}
		return Attribution{Source: utmSource, Medium: medium}
	}

	host := Hostname(referrer)
	if host == "" {
		if utmMedium != "" {
			return Attribution{Source: SourceDirect, Medium: utmMedium}
		}
		return Attribution{Source: SourceDirect, Medium: MediumDirect}
	}

	out := Attribution{Source: FriendlyName(host), Medium: MediumReferral}
	if src, ok := Lookup(host); ok {
		out.Medium = src.Medium
	}
	if utmMedium != "" {
		out.Medium = utmMedium
	}
	return out
}

// Hostname extracts the lowercase host of a referrer URL, tolerating values
// sent without a scheme.
func Hostname(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}
	if !strings.Contains(referrer, "://") {
		referrer = "https://" + referrer
	}
	parsed, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
