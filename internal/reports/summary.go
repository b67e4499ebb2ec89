package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"gorm.io/gorm"

	"leadpulse/internal/attribution"
	"leadpulse/internal/events"
	"leadpulse/internal/pkg/async"
	"leadpulse/internal/scoring"
	"leadpulse/internal/sessions"
	"leadpulse/internal/timeframe"
)

// Connector hands out the database connection reports read from.
type Connector interface {
	GetConnection() *gorm.DB
}

// Options configures report loading.
type Options struct {
	AdminPathPrefix string
	PathMaxSteps    int
	// CacheTTL enables caching of summaries for ranges that ended in the past.
	CacheTTL time.Duration
}

// Dataset is everything a summary is computed from.
type Dataset struct {
	Range       timeframe.Range
	Sessions    []sessions.Session
	Paths       []attribution.ConversionPath
	EventCounts []events.KindCount
}

// Totals are the headline numbers of a summary.
type Totals struct {
	Sessions       int     `json:"sessions"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
	HotLeads       int     `json:"hotLeads"`
	AverageScore   float64 `json:"averageScore"`
	Events         int64   `json:"events"`
}

// Summary holds every report for one time range.
type Summary struct {
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	Label       string        `json:"label"`
	Totals      Totals        `json:"totals"`
	FirstTouch  []PageShare   `json:"firstTouch"`
	LastTouch   []PageShare   `json:"lastTouch"`
	AssistPages []AssistPage  `json:"assistPages"`
	Paths       []PathShare   `json:"paths"`
	Tiers       []TierShare   `json:"tiers"`
	Funnel      []FunnelStage `json:"funnel"`
	Cohorts     []Cohort      `json:"cohorts"`
	Breakdown   Breakdown     `json:"breakdown"`
	Events      []KindVolume  `json:"events"`
}

// Service loads data and builds summaries.
type Service struct {
	conn   Connector
	logger *slog.Logger
	opts   Options
	pool   *async.Pool
	cache  *cache.Cache[string, *Summary]
}

// NewService creates a report service reading through conn.
func NewService(conn Connector, logger *slog.Logger, opts Options) *Service {
	if opts.PathMaxSteps <= 0 {
		opts.PathMaxSteps = DefaultPathSteps
	}
	s := &Service{
		conn:   conn,
		logger: logger,
		opts:   opts,
		pool:   async.NewPool(3),
	}
	if opts.CacheTTL > 0 {
		s.cache = cache.NewCache[string, *Summary](logger, opts.CacheTTL, s.fetchByKey)
	}
	return s
}

// Summary returns the reports for r. Ranges that ended in the past are
// served from the cache when one is configured.
func (s *Service) Summary(ctx context.Context, r *timeframe.Range) (*Summary, error) {
	if s.cache != nil && r.To.Before(time.Now()) {
		return s.cache.Get(r.Key())
	}
	return s.Build(ctx, r)
}

// ClearCache drops cached summaries, e.g. after old data was removed.
func (s *Service) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Build loads the dataset for r and computes a fresh summary.
func (s *Service) Build(ctx context.Context, r *timeframe.Range) (*Summary, error) {
	start := time.Now()
	data, err := s.Load(ctx, r)
	if err != nil {
		return nil, err
	}

	summary := Summarize(data, s.opts.PathMaxSteps)

	s.logger.Debug("Built report summary",
		slog.String("range", r.Label()),
		slog.Int("sessions", len(data.Sessions)),
		slog.Int("conversion_paths", len(data.Paths)),
		slog.Duration("took", time.Since(start)))

	return summary, nil
}

// Load reads sessions, conversion paths and event counts for r concurrently.
// Bot traffic and admin pages are excluded.
func (s *Service) Load(ctx context.Context, r *timeframe.Range) (*Dataset, error) {
	db := s.conn.GetConnection().WithContext(ctx)
	prefix := s.opts.AdminPathPrefix

	tasks := []async.Task{
		{
			Name: "sessions",
			Execute: func(ctx context.Context) (any, error) {
				return sessions.ListInRange(db, sessions.ListFilter{From: r.From, To: r.To, ExcludePrefix: prefix})
			},
		},
		{
			Name: "paths",
			Execute: func(ctx context.Context) (any, error) {
				return attribution.ListInRange(db, r.From, r.To, prefix)
			},
		},
		{
			Name: "events",
			Execute: func(ctx context.Context) (any, error) {
				return events.CountByKind(db, r.From, r.To, prefix)
			},
		},
	}

	results := s.pool.Execute(ctx, tasks)
	for _, task := range tasks {
		result, ok := results[task.Name]
		if !ok {
			return nil, fmt.Errorf("loading %s: %w", task.Name, ctx.Err())
		}
		if result.Err != nil {
			return nil, fmt.Errorf("loading %s: %w", task.Name, result.Err)
		}
	}

	return &Dataset{
		Range:       *r,
		Sessions:    results["sessions"].Data.([]sessions.Session),
		Paths:       results["paths"].Data.([]attribution.ConversionPath),
		EventCounts: results["events"].Data.([]events.KindCount),
	}, nil
}

// Summarize computes every report over an already loaded dataset.
func Summarize(data *Dataset, pathMaxSteps int) *Summary {
	return &Summary{
		From:        data.Range.From,
		To:          data.Range.To,
		Label:       data.Range.Label(),
		Totals:      computeTotals(data),
		FirstTouch:  FirstTouch(data.Paths),
		LastTouch:   LastTouch(data.Paths),
		AssistPages: AssistPages(data.Paths),
		Paths:       PathFrequency(data.Paths, pathMaxSteps),
		Tiers:       TierDistribution(data.Sessions),
		Funnel:      Funnel(data.Sessions),
		Cohorts:     WeeklyCohorts(data.Sessions, data.Range),
		Breakdown:   ConversionBreakdown(data.Sessions),
		Events:      EventVolume(data.EventCounts),
	}
}

func computeTotals(data *Dataset) Totals {
	totals := Totals{Sessions: len(data.Sessions)}
	var scoreSum int
	for _, s := range data.Sessions {
		scoreSum += s.Score
		if s.Converted {
			totals.Conversions++
		}
		if scoring.TierFor(s.Score).AtLeast(scoring.TierHot) {
			totals.HotLeads++
		}
	}
	for _, c := range data.EventCounts {
		totals.Events += c.Count
	}
	totals.ConversionRate = Percentage(totals.Conversions, totals.Sessions)
	if totals.Sessions > 0 {
		totals.AverageScore = roundTwo(float64(scoreSum) / float64(totals.Sessions))
	}
	return totals
}

func (s *Service) fetchByKey(key string) (*Summary, error) {
	r, err := parseRangeKey(key)
	if err != nil {
		return nil, err
	}
	return s.Build(context.Background(), r)
}

func parseRangeKey(key string) (*timeframe.Range, error) {
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid range key %q", key)
	}
	from, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid range start: %w", err)
	}
	to, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid range end: %w", err)
	}
	loc, err := time.LoadLocation(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid range timezone: %w", err)
	}
	return timeframe.NewRange(from, to, loc)
}
