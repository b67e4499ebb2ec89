package reports

import (
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"leadpulse/internal/events"
)

var countries = sync.OnceValue(gountries.New)

// DeviceLabel returns the display name of a stored device class.
func DeviceLabel(device string) string {
	if device == "" || device == UnknownSegment || device == events.UnknownDevice {
		return "Unknown"
	}
	return cases.Title(language.AmericanEnglish).String(device)
}

// CountryLabel returns the common English name of an ISO alpha-2 code, or the
// upper-cased code when it is not recognized.
func CountryLabel(code string) string {
	if code == "" || code == UnknownSegment {
		return "Unknown"
	}
	country, err := countries().FindCountryByAlpha(strings.ToUpper(code))
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(code)
	}
	return country.Name.Common
}
