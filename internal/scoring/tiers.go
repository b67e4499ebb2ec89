package scoring

import (
	"fmt"
	"strings"
)

// Tier is an ordered engagement classification derived from a score.
type Tier int

const (
	TierCold Tier = iota
	TierWarm
	TierHot
	TierVeryHot
)

// Lower bounds of each tier, ascending. Cold starts at zero.
const (
	WarmThreshold    = 20
	HotThreshold     = 50
	VeryHotThreshold = 100
)

// TierFor classifies a score. Non-decreasing scores never yield a lower tier.
func TierFor(score int) Tier {
	switch {
	case score >= VeryHotThreshold:
		return TierVeryHot
	case score >= HotThreshold:
		return TierHot
	case score >= WarmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

// String returns the display label stored on sessions and sent to clients.
func (t Tier) String() string {
	switch t {
	case TierWarm:
		return "Warm"
	case TierHot:
		return "Hot"
	case TierVeryHot:
		return "Very Hot"
	default:
		return "Cold"
	}
}

// Slug returns a lowercase identifier usable in metric labels and keys.
func (t Tier) Slug() string {
	return strings.ReplaceAll(strings.ToLower(t.String()), " ", "_")
}

// AtLeast reports whether t ranks at or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t >= other
}

// Tiers lists every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierCold, TierWarm, TierHot, TierVeryHot}
}

// ParseTier accepts either the display label or the slug, case-insensitively.
func ParseTier(s string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	for _, t := range Tiers() {
		if t.Slug() == normalized {
			return t, nil
		}
	}
	return TierCold, fmt.Errorf("unknown tier %q", s)
}
