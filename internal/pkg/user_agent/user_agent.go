package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

type UserAgent struct {
	UserAgent      string
	OS             string
	OSVersion      string
	Browser        string
	BrowserVersion string
	Device         string
	Mobile         bool
	Tablet         bool
	Desktop        bool
	Bot            bool
	BotName        string
	BotCategory    string
}

//go:embed database/bots.yml
//go:embed database/oss.yml
//go:embed database/client/browsers.yml
var databaseFiles embed.FS

// Browser entry structure
type BrowserEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// OS entry structure
type OSEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Bot entry structure
type BotEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Global parser instance
var (
	parser *Parser
	once   sync.Once
)

// Parser classifies user agents against the embedded pattern databases.
type Parser struct {
	browsers   []BrowserEntry
	oss        []OSEntry
	bots       []BotEntry
	regexCache *RegexCache
}

func loadDatabase(path string, out any) {
	data, err := databaseFiles.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read user agent database", slog.String("file", path), slog.Any("error", err))
		return
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		slog.Error("Failed to parse user agent database", slog.String("file", path), slog.Any("error", err))
	}
}

func getParser() *Parser {
	once.Do(func() {
		parser = &Parser{regexCache: newRegexCache()}
		loadDatabase("database/client/browsers.yml", &parser.browsers)
		loadDatabase("database/oss.yml", &parser.oss)
		loadDatabase("database/bots.yml", &parser.bots)
	})
	return parser
}

func (p *Parser) parseBot(userAgent string) *BotEntry {
	for i := range p.bots {
		if regex, err := p.regexCache.get(p.bots[i].Regex); err == nil {
			if regex.MatchString(userAgent) {
				return &p.bots[i]
			}
		}
	}
	return nil
}

// match returns the first entry whose regex matches along with the
// expanded version template.
func (p *Parser) match(userAgent string, regexes []string, versions []string) (int, string) {
	for i, pattern := range regexes {
		regex, err := p.regexCache.get(pattern)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(userAgent)
		if len(matches) == 0 {
			continue
		}
		version := versions[i]
		if version != "" {
			// Replace $1, $2, etc. with actual match groups
			for j, group := range matches[1:] {
				version = strings.ReplaceAll(version, fmt.Sprintf("$%d", j+1), group)
			}
			version = strings.ReplaceAll(version, "_", ".")
		}
		return i, version
	}
	return -1, ""
}

func (p *Parser) parseBrowser(userAgent string) (string, string) {
	regexes := make([]string, len(p.browsers))
	versions := make([]string, len(p.browsers))
	for i, entry := range p.browsers {
		regexes[i], versions[i] = entry.Regex, entry.Version
	}
	if i, version := p.match(userAgent, regexes, versions); i >= 0 {
		return p.browsers[i].Name, version
	}
	return "Unknown", ""
}

func (p *Parser) parseOS(userAgent string) (string, string) {
	regexes := make([]string, len(p.oss))
	versions := make([]string, len(p.oss))
	for i, entry := range p.oss {
		regexes[i], versions[i] = entry.Regex, entry.Version
	}
	if i, version := p.match(userAgent, regexes, versions); i >= 0 {
		return p.oss[i].Name, version
	}
	return "Unknown", ""
}

func parseDevice(userAgent string) (string, bool, bool, bool) {
	ua := strings.ToLower(userAgent)

	// Check for tablet indicators first (they often contain "mobile" too)
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")) {
		return "Tablet", false, true, false
	}

	// Check for mobile indicators
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") || strings.Contains(ua, "ipod") ||
		strings.Contains(ua, "blackberry") || strings.Contains(ua, "windows phone") {
		return "Mobile", true, false, false
	}

	// Default to desktop
	return "Desktop", false, false, true
}

// ParseUserAgent classifies a raw User-Agent header. Bots are checked first
// and short-circuit browser and OS detection.
func ParseUserAgent(userAgent string) UserAgent {
	p := getParser()

	if bot := p.parseBot(userAgent); bot != nil {
		return UserAgent{
			UserAgent:   userAgent,
			OS:          "Unknown",
			Browser:     bot.Name,
			Device:      "Bot",
			Bot:         true,
			BotName:     bot.Name,
			BotCategory: bot.Category,
		}
	}

	browser, browserVersion := p.parseBrowser(userAgent)
	os, osVersion := p.parseOS(userAgent)
	device, mobile, tablet, desktop := parseDevice(userAgent)

	return UserAgent{
		UserAgent:      userAgent,
		OS:             os,
		OSVersion:      osVersion,
		Browser:        browser,
		BrowserVersion: browserVersion,
		Device:         device,
		Mobile:         mobile,
		Tablet:         tablet,
		Desktop:        desktop,
	}
}

// IsBot reports whether userAgent matches a known bot pattern.
func IsBot(userAgent string) bool {
	return getParser().parseBot(userAgent) != nil
}
