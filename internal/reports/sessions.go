package reports

import (
	"math"
	"sort"
	"time"

	"leadpulse/internal/events"
	"leadpulse/internal/scoring"
	"leadpulse/internal/sessions"
	"leadpulse/internal/timeframe"
)

// Engagement thresholds for the funnel's "engaged" stage.
const (
	EngagedMinPages       = 2
	EngagedMinScrollDepth = 50
	EngagedMinDuration    = 30
)

// Funnel stage names, top to bottom.
const (
	StageSessions  = "sessions"
	StageEngaged   = "engaged"
	StageWarm      = "warm"
	StageHot       = "hot"
	StageConverted = "converted"
)

// UnknownSegment groups sessions without a device or country.
const UnknownSegment = "unknown"

// TierShare is how many sessions sit in one tier.
type TierShare struct {
	Tier       string  `json:"tier"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FunnelStage is one step of the lead funnel. Percentage is relative to all
// sessions; StepRate is relative to the previous stage.
type FunnelStage struct {
	Stage      string  `json:"stage"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	StepRate   float64 `json:"stepRate"`
}

// Cohort aggregates the sessions that started in one week.
type Cohort struct {
	Week           string  `json:"week"`
	Sessions       int     `json:"sessions"`
	HotLeads       int     `json:"hotLeads"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
	AverageScore   float64 `json:"averageScore"`
}

// Segment is the conversion performance of one device class or country.
type Segment struct {
	Key            string  `json:"key"`
	Label          string  `json:"label"`
	Sessions       int     `json:"sessions"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
}

// Breakdown splits conversion performance by device and by country.
type Breakdown struct {
	ByDevice  []Segment `json:"byDevice"`
	ByCountry []Segment `json:"byCountry"`
}

// KindVolume is the number of human events of one kind.
type KindVolume struct {
	Kind       string  `json:"kind"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// TierDistribution counts sessions per tier, listing every tier in ascending
// order even when empty. Tiers are derived from the stored score.
func TierDistribution(list []sessions.Session) []TierShare {
	counts := make(map[scoring.Tier]int)
	for _, s := range list {
		counts[scoring.TierFor(s.Score)]++
	}

	tiers := scoring.Tiers()
	result := make([]TierShare, len(tiers))
	for i, tier := range tiers {
		result[i] = TierShare{
			Tier:       tier.String(),
			Count:      counts[tier],
			Percentage: Percentage(counts[tier], len(list)),
		}
	}
	return result
}

// IsEngaged reports whether a session went beyond a single glance.
func IsEngaged(s sessions.Session) bool {
	return s.PageCount >= EngagedMinPages ||
		s.MaxScrollDepth >= EngagedMinScrollDepth ||
		s.DurationSeconds >= EngagedMinDuration ||
		s.Converted
}

// Funnel counts sessions at each stage: all, engaged, warm or above, hot or
// above, converted.
func Funnel(list []sessions.Session) []FunnelStage {
	var engaged, warm, hot, converted int
	for _, s := range list {
		tier := scoring.TierFor(s.Score)
		if IsEngaged(s) {
			engaged++
		}
		if tier.AtLeast(scoring.TierWarm) {
			warm++
		}
		if tier.AtLeast(scoring.TierHot) {
			hot++
		}
		if s.Converted {
			converted++
		}
	}

	counts := []struct {
		stage string
		count int
	}{
		{StageSessions, len(list)},
		{StageEngaged, engaged},
		{StageWarm, warm},
		{StageHot, hot},
		{StageConverted, converted},
	}

	stages := make([]FunnelStage, len(counts))
	for i, c := range counts {
		previous := len(list)
		if i > 0 {
			previous = counts[i-1].count
		}
		stages[i] = FunnelStage{
			Stage:      c.stage,
			Count:      c.count,
			Percentage: Percentage(c.count, len(list)),
			StepRate:   Percentage(c.count, previous),
		}
	}
	return stages
}

// WeeklyCohorts groups sessions by the week they started in, within r's
// timezone. Every week in r is present, including empty ones.
func WeeklyCohorts(list []sessions.Session, r timeframe.Range) []Cohort {
	weeks := r.Buckets(timeframe.BucketSizeWeek)
	index := make(map[string]int, len(weeks))
	cohorts := make([]Cohort, len(weeks))
	scores := make([]int, len(weeks))

	for i, week := range weeks {
		key := timeframe.FormatBucket(week, timeframe.BucketSizeWeek)
		index[key] = i
		cohorts[i].Week = key
	}

	for _, s := range list {
		key := weekKey(s.StartedAt, r.Tz)
		i, ok := index[key]
		if !ok {
			continue
		}
		cohorts[i].Sessions++
		scores[i] += s.Score
		if scoring.TierFor(s.Score).AtLeast(scoring.TierHot) {
			cohorts[i].HotLeads++
		}
		if s.Converted {
			cohorts[i].Conversions++
		}
	}

	for i := range cohorts {
		cohorts[i].ConversionRate = Percentage(cohorts[i].Conversions, cohorts[i].Sessions)
		if cohorts[i].Sessions > 0 {
			cohorts[i].AverageScore = roundTwo(float64(scores[i]) / float64(cohorts[i].Sessions))
		}
	}
	return cohorts
}

func weekKey(t time.Time, tz *time.Location) string {
	return timeframe.FormatBucket(timeframe.TruncateToBucketInTimezone(t, timeframe.BucketSizeWeek, tz), timeframe.BucketSizeWeek)
}

// ConversionBreakdown splits sessions by device class and by country.
func ConversionBreakdown(list []sessions.Session) Breakdown {
	return Breakdown{
		ByDevice:  segment(list, func(s sessions.Session) string { return s.Device }, DeviceLabel),
		ByCountry: segment(list, func(s sessions.Session) string { return s.Country }, CountryLabel),
	}
}

func segment(list []sessions.Session, keyOf func(sessions.Session) string, labelOf func(string) string) []Segment {
	bySegment := make(map[string]*Segment)
	for _, s := range list {
		key := keyOf(s)
		if key == "" {
			key = UnknownSegment
		}
		seg, ok := bySegment[key]
		if !ok {
			seg = &Segment{Key: key, Label: labelOf(key)}
			bySegment[key] = seg
		}
		seg.Sessions++
		if s.Converted {
			seg.Conversions++
		}
	}

	result := make([]Segment, 0, len(bySegment))
	for _, seg := range bySegment {
		seg.ConversionRate = Percentage(seg.Conversions, seg.Sessions)
		result = append(result, *seg)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Sessions != result[j].Sessions {
			return result[i].Sessions > result[j].Sessions
		}
		return result[i].Key < result[j].Key
	})
	return result
}

// EventVolume turns per-kind counts into shares of all human events.
func EventVolume(counts []events.KindCount) []KindVolume {
	var total int64
	for _, c := range counts {
		total += c.Count
	}

	result := make([]KindVolume, len(counts))
	for i, c := range counts {
		result[i] = KindVolume{
			Kind:       string(c.Kind),
			Count:      c.Count,
			Percentage: Percentage(int(c.Count), int(total)),
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
