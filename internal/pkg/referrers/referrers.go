// Package referrers names the sites visitors arrive from and classifies
// them into traffic mediums.
package referrers

import "strings"

// Source is a known referring site.
type Source struct {
	Name   string
	Medium string
}

func search(name string) Source  { return Source{Name: name, Medium: MediumOrganic} }
func social(name string) Source  { return Source{Name: name, Medium: MediumSocial} }
func webmail(name string) Source { return Source{Name: name, Medium: MediumEmail} }
func site(name string) Source    { return Source{Name: name, Medium: MediumReferral} }

// knownHosts is keyed by registrable host. Subdomains resolve to their parent.
var knownHosts = map[string]Source{
	"google.com":     search("Google"),
	"google.co.uk":   search("Google"),
	"google.de":      search("Google"),
	"google.fr":      search("Google"),
	"google.es":      search("Google"),
	"google.ca":      search("Google"),
	"google.com.au":  search("Google"),
	"bing.com":       search("Bing"),
	"duckduckgo.com": search("DuckDuckGo"),
	"yahoo.com":      search("Yahoo"),
	"ecosia.org":     search("Ecosia"),
	"kagi.com":       search("Kagi"),
	"perplexity.ai":  search("Perplexity"),
	"chatgpt.com":    search("ChatGPT"),

	"linkedin.com":  social("LinkedIn"),
	"lnkd.in":       social("LinkedIn"),
	"x.com":         social("X/Twitter"),
	"twitter.com":   social("X/Twitter"),
	"t.co":          social("X/Twitter"),
	"facebook.com":  social("Facebook"),
	"fb.com":        social("Facebook"),
	"instagram.com": social("Instagram"),
	"reddit.com":    social("Reddit"),
	"youtube.com":   social("YouTube"),
	"youtu.be":      social("YouTube"),
	"threads.net":   social("Threads"),
	"bsky.app":      social("Bluesky"),
	"slack.com":     social("Slack"),

	"mail.google.com":    webmail("Gmail"),
	"outlook.live.com":   webmail("Outlook"),
	"outlook.office.com": webmail("Outlook"),
	"mail.yahoo.com":     webmail("Yahoo Mail"),
	"mail.proton.me":     webmail("Proton Mail"),

	"news.ycombinator.com": site("Hacker News"),
	"producthunt.com":      site("Product Hunt"),
	"g2.com":               site("G2"),
	"capterra.com":         site("Capterra"),
	"clutch.co":            site("Clutch"),
	"medium.com":           site("Medium"),
	"substack.com":         site("Substack"),
	"github.com":           site("GitHub"),
}

// Lookup finds the known source for hostname, matching the host itself and
// then each parent domain, so "m.facebook.com" resolves to Facebook.
func Lookup(hostname string) (Source, bool) {
	host := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hostname)), "www.")
	for host != "" {
		if src, ok := knownHosts[host]; ok {
			return src, true
		}
		dot := strings.IndexByte(host, '.')
		if dot < 0 {
			break
		}
		host = host[dot+1:]
	}
	return Source{}, false
}

// FriendlyName returns the display name of a referrer host. Unknown hosts are
// shown without "www." and with a capitalized first letter.
func FriendlyName(hostname string) string {
	if src, ok := Lookup(hostname); ok {
		return src.Name
	}
	host := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hostname)), "www.")
	if host == "" {
		return ""
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
