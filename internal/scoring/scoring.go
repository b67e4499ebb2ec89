// Package scoring turns behavioral events into engagement points and tiers.
// Everything here is pure: the same event and previous score always produce
// the same result.
package scoring

import "strings"

// Event kinds understood by the point table. Anything else scores zero.
const (
	KindPageView         = "page_view"
	KindPageExit         = "page_exit"
	KindScrollDepth      = "scroll_depth"
	KindChatOpened       = "chat_opened"
	KindChatMessage      = "chat_message"
	KindChatLeadDetected = "chat_lead_detected"
	KindFormSubmitted    = "form_submitted"
)

var basePoints = map[string]int{
	KindPageView:         1,
	KindPageExit:         0,
	KindScrollDepth:      0,
	KindChatOpened:       5,
	KindChatMessage:      3,
	KindChatLeadDetected: 25,
	KindFormSubmitted:    30,
}

// Scroll milestones, checked from the deepest down.
var scrollRules = []struct {
	minPercent int
	points     int
}{
	{minPercent: 75, points: 5},
	{minPercent: 50, points: 2},
}

// PathCategory is a high-intent page family matched by substring.
type PathCategory struct {
	Name     string
	Patterns []string
	Points   int
}

// pathCategories is ordered; a path gets the first matching category only.
var pathCategories = []PathCategory{
	{Name: "pricing", Patterns: []string{"pricing", "plans"}, Points: 10},
	{Name: "assessment", Patterns: []string{"assessment"}, Points: 10},
	{Name: "contact", Patterns: []string{"contact", "book-a-call", "demo"}, Points: 8},
	{Name: "case-studies", Patterns: []string{"case-studies", "case-study"}, Points: 5},
}

// Input is the scoring-relevant view of one event.
type Input struct {
	Kind          string
	Path          string
	ScrollPercent int
}

// Result carries the new cumulative score and how it was reached.
type Result struct {
	Score        int
	Points       int
	BasePoints   int
	RulePoints   int
	PathPoints   int
	PathCategory string
	Tier         Tier
}

// BasePoints returns the fixed table value for a kind; unknown kinds are 0.
func BasePoints(kind string) int {
	return basePoints[kind]
}

// KnownKind reports whether the point table has an entry for kind.
func KnownKind(kind string) bool {
	_, ok := basePoints[kind]
	return ok
}

// RulePoints applies the conditional rules that depend on event fields.
func RulePoints(in Input) int {
	if in.Kind != KindScrollDepth {
		return 0
	}
	for _, rule := range scrollRules {
		if in.ScrollPercent >= rule.minPercent {
			return rule.points
		}
	}
	return 0
}

// CategorizePath returns the first high-intent category whose pattern occurs
// in path, compared case-insensitively.
func CategorizePath(path string) (PathCategory, bool) {
	if path == "" {
		return PathCategory{}, false
	}
	lower := strings.ToLower(path)
	for _, category := range pathCategories {
		for _, pattern := range category.Patterns {
			if strings.Contains(lower, pattern) {
				return category, true
			}
		}
	}
	return PathCategory{}, false
}

// PathModifier returns the extra points a page path earns.
func PathModifier(path string) int {
	category, ok := CategorizePath(path)
	if !ok {
		return 0
	}
	return category.Points
}

// Points returns the total contribution of a single event. Unknown kinds
// contribute nothing, including path modifiers.
func Points(in Input) int {
	if !KnownKind(in.Kind) {
		return 0
	}
	return BasePoints(in.Kind) + RulePoints(in) + PathModifier(in.Path)
}

// Accumulate folds one event into a previous score. Negative previous scores
// are treated as zero so the result is never negative.
func Accumulate(previous int, in Input) Result {
	if previous < 0 {
		previous = 0
	}

	result := Result{}
	if KnownKind(in.Kind) {
		result.BasePoints = BasePoints(in.Kind)
		result.RulePoints = RulePoints(in)
		if category, ok := CategorizePath(in.Path); ok {
			result.PathPoints = category.Points
			result.PathCategory = category.Name
		}
	}
	result.Points = result.BasePoints + result.RulePoints + result.PathPoints
	result.Score = previous + result.Points
	result.Tier = TierFor(result.Score)
	return result
}
