// Package reports computes read-only aggregates over stored sessions, events
// and conversion paths.
//
// The package is organized into focused files:
//   - attribution.go: first/last touch, assist pages and path frequency
//   - sessions.go: tiers, funnel, weekly cohorts and conversion breakdowns
//   - labels.go: human-readable labels for devices and countries
//   - summary.go: loading data for a time range and building summaries
//
// Aggregation functions are pure; bot traffic and admin pages are filtered
// out by the loaders before any counting happens.
package reports

import (
	"math"
	"sort"
	"strings"

	"leadpulse/internal/attribution"
)

// DefaultPathSteps is how many pages a path shows before it is truncated.
const DefaultPathSteps = 5

// TruncationMarker ends the display of a path that was cut short.
const TruncationMarker = "…"

const pathSeparator = " → "

// PageShare is a page and its share of all conversions.
type PageShare struct {
	Page       string  `json:"page"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AssistPage is a page seen in the middle of converting journeys.
type AssistPage struct {
	Page           string  `json:"page"`
	AssistCount    int     `json:"assistCount"`
	InfluenceScore float64 `json:"influenceScore"`
}

// PathShare is one distinct journey and how often it converted.
type PathShare struct {
	Path       string   `json:"path"`
	Steps      []string `json:"steps"`
	Length     int      `json:"length"`
	Truncated  bool     `json:"truncated"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
}

// Percentage returns part as a percentage of total rounded to two decimals.
// A zero total yields 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// FirstTouch groups conversions by the first page of their journey.
func FirstTouch(paths []attribution.ConversionPath) []PageShare {
	return touchShares(paths, func(p attribution.ConversionPath) string { return p.FirstTouchPage })
}

// LastTouch groups conversions by the last page of their journey.
func LastTouch(paths []attribution.ConversionPath) []PageShare {
	return touchShares(paths, func(p attribution.ConversionPath) string { return p.LastTouchPage })
}

func touchShares(paths []attribution.ConversionPath, pageOf func(attribution.ConversionPath) string) []PageShare {
	counts := make(map[string]int)
	for _, path := range paths {
		counts[pageOf(path)]++
	}

	shares := make([]PageShare, 0, len(counts))
	for page, count := range counts {
		shares = append(shares, PageShare{
			Page:       page,
			Count:      count,
			Percentage: Percentage(count, len(paths)),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Page < shares[j].Page
	})
	return shares
}

// AssistPages counts pages that appear between the first and last touch of a
// journey. The influence score is the share of all conversions whose journey
// touched the page at any position.
func AssistPages(paths []attribution.ConversionPath) []AssistPage {
	assists := make(map[string]int)
	touched := make(map[string]int)

	for _, path := range paths {
		pages := path.Pages()
		seen := make(map[string]bool, len(pages))
		for i, page := range pages {
			if !seen[page] {
				seen[page] = true
				touched[page]++
			}
			if i > 0 && i < len(pages)-1 {
				assists[page]++
			}
		}
	}

	result := make([]AssistPage, 0, len(assists))
	for page, count := range assists {
		result = append(result, AssistPage{
			Page:           page,
			AssistCount:    count,
			InfluenceScore: Percentage(touched[page], len(paths)),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AssistCount != result[j].AssistCount {
			return result[i].AssistCount > result[j].AssistCount
		}
		return result[i].Page < result[j].Page
	})
	return result
}

// PathFrequency groups whole journeys by their page sequence. Only the first
// maxSteps pages are displayed; longer paths end with TruncationMarker.
func PathFrequency(paths []attribution.ConversionPath, maxSteps int) []PathShare {
	if maxSteps <= 0 {
		maxSteps = DefaultPathSteps
	}

	type group struct {
		pages []string
		count int
	}
	groups := make(map[string]*group)
	for _, path := range paths {
		pages := path.Pages()
		key := strings.Join(pages, "\x00")
		if g, ok := groups[key]; ok {
			g.count++
			continue
		}
		groups[key] = &group{pages: pages, count: 1}
	}

	result := make([]PathShare, 0, len(groups))
	for _, g := range groups {
		display := g.pages
		truncated := len(display) > maxSteps
		if truncated {
			display = append(append([]string{}, display[:maxSteps]...), TruncationMarker)
		}
		result = append(result, PathShare{
			Path:       strings.Join(display, pathSeparator),
			Steps:      display,
			Length:     len(g.pages),
			Truncated:  truncated,
			Count:      g.count,
			Percentage: Percentage(g.count, len(paths)),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Path < result[j].Path
	})
	return result
}
