package events

import (
	"strings"

	ua "leadpulse/internal/pkg/user_agent"
)

// DeviceTypeFromUA extracts device type from parsed user agent
func DeviceTypeFromUA(parsed ua.UserAgent) string {
	if parsed.Mobile {
		return "mobile"
	}
	if parsed.Tablet {
		return "tablet"
	}
	if parsed.Desktop {
		return "desktop"
	}
	return UnknownDevice
}

// NormalizeDevice prefers the client-reported device class when it is one we
// recognize and falls back to the parsed user agent otherwise.
func NormalizeDevice(reported string, parsed ua.UserAgent) string {
	switch strings.ToLower(strings.TrimSpace(reported)) {
	case "mobile", "phone", "smartphone":
		return "mobile"
	case "tablet":
		return "tablet"
	case "desktop", "laptop":
		return "desktop"
	}
	return DeviceTypeFromUA(parsed)
}

// BrowserFromUA extracts and normalizes browser name from parsed user agent
func BrowserFromUA(parsed ua.UserAgent) string {
	if parsed.Bot || parsed.Browser == "" || parsed.Browser == "Unknown" {
		return UnknownBrowser
	}

	browserName := strings.ToLower(parsed.Browser)

	switch browserName {
	case "internet explorer":
		return "ie"
	case "mobile safari":
		return "safari"
	case "chrome mobile", "chrome mobile webview":
		return "chrome"
	case "firefox mobile":
		return "firefox"
	case "opera mini", "opera mobile":
		return "opera"
	case "edge mobile":
		return "edge"
	default:
		return browserName
	}
}

// NormalizeOperatingSystem normalizes operating system names to standardize them
func NormalizeOperatingSystem(os string) string {
	if os == "" || os == "Unknown" {
		return UnknownOS
	}

	osLower := strings.ToLower(os)

	switch {
	case strings.Contains(osLower, "ipados"):
		return "iPadOS"
	case strings.Contains(osLower, "chrome os"):
		return "ChromeOS"
	case strings.Contains(osLower, "ios") || strings.Contains(osLower, "iphone os"):
		return "iOS"
	case strings.Contains(osLower, "mac") || strings.Contains(osLower, "darwin"):
		return "MacOS"
	case strings.Contains(osLower, "android"):
		return "Android"
	case strings.Contains(osLower, "linux"):
		return "Linux"
	case strings.Contains(osLower, "windows"):
		return "Windows"
	}

	return strings.ToUpper(os[:1]) + strings.ToLower(os[1:])
}
