package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpulse/internal/attribution"
	"leadpulse/internal/events"
	"leadpulse/internal/reports"
	"leadpulse/internal/sessions"
	"leadpulse/internal/testsupport"
	"leadpulse/internal/timeframe"
)

func path(pages ...string) attribution.ConversionPath {
	steps := make([]attribution.Step, len(pages))
	for i, page := range pages {
		steps[i] = attribution.Step{Page: page}
	}
	return attribution.ConversionPath{
		Steps:          steps,
		FirstTouchPage: pages[0],
		LastTouchPage:  pages[len(pages)-1],
		JourneyLength:  len(pages),
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, reports.Percentage(3, 0))
	assert.Equal(t, 0.0, reports.Percentage(0, 10))
	assert.Equal(t, 50.0, reports.Percentage(1, 2))
	assert.Equal(t, 33.33, reports.Percentage(1, 3))
	assert.Equal(t, 66.67, reports.Percentage(2, 3))
}

func TestTouchAttribution(t *testing.T) {
	paths := []attribution.ConversionPath{
		path("/blog/a", "/pricing", "/contact"),
		path("/blog/a", "/contact"),
		path("/", "/case-studies", "/pricing", "/assessment"),
		path("/pricing"),
	}

	first := reports.FirstTouch(paths)
	require.Len(t, first, 3)
	assert.Equal(t, reports.PageShare{Page: "/blog/a", Count: 2, Percentage: 50}, first[0])
	assert.Equal(t, "/", first[1].Page)
	assert.Equal(t, "/pricing", first[2].Page)

	last := reports.LastTouch(paths)
	require.Len(t, last, 3)
	assert.Equal(t, reports.PageShare{Page: "/contact", Count: 2, Percentage: 50}, last[0])
	assert.Equal(t, 25.0, last[1].Percentage)

	t.Run("no conversions", func(t *testing.T) {
		assert.Empty(t, reports.FirstTouch(nil))
		assert.Empty(t, reports.LastTouch(nil))
	})
}

func TestAssistPages(t *testing.T) {
	paths := []attribution.ConversionPath{
		path("/blog/a", "/pricing", "/contact"),
		path("/", "/case-studies", "/pricing", "/assessment"),
		path("/pricing", "/contact"),
		path("/pricing"),
	}

	assists := reports.AssistPages(paths)
	require.Len(t, assists, 2)

	// /pricing sits mid-journey twice and is touched by every conversion.
	assert.Equal(t, reports.AssistPage{Page: "/pricing", AssistCount: 2, InfluenceScore: 100}, assists[0])
	assert.Equal(t, reports.AssistPage{Page: "/case-studies", AssistCount: 1, InfluenceScore: 25}, assists[1])

	assert.Empty(t, reports.AssistPages(nil))
}

func TestPathFrequency(t *testing.T) {
	long := path("/a", "/b", "/c", "/d", "/e", "/f", "/g")
	paths := []attribution.ConversionPath{
		path("/", "/pricing", "/contact"),
		path("/", "/pricing", "/contact"),
		path("/", "/contact"),
		long,
	}

	result := reports.PathFrequency(paths, 0)
	require.Len(t, result, 3)

	assert.Equal(t, "/ → /pricing → /contact", result[0].Path)
	assert.Equal(t, 2, result[0].Count)
	assert.Equal(t, 50.0, result[0].Percentage)
	assert.False(t, result[0].Truncated)

	var truncated reports.PathShare
	for _, p := range result {
		if p.Truncated {
			truncated = p
		}
	}
	assert.Equal(t, 7, truncated.Length)
	assert.Equal(t, []string{"/a", "/b", "/c", "/d", "/e", reports.TruncationMarker}, truncated.Steps)
	assert.Equal(t, "/a → /b → /c → /d → /e → …", truncated.Path)

	t.Run("custom cap", func(t *testing.T) {
		result := reports.PathFrequency([]attribution.ConversionPath{long}, 2)
		require.Len(t, result, 1)
		assert.Equal(t, []string{"/a", "/b", reports.TruncationMarker}, result[0].Steps)
	})

	t.Run("no conversions", func(t *testing.T) {
		assert.Empty(t, reports.PathFrequency(nil, 5))
	})
}

func TestTierDistributionAndFunnel(t *testing.T) {
	list := []sessions.Session{
		{Score: 1, PageCount: 1},
		{Score: 12, PageCount: 3},
		{Score: 25, PageCount: 2, MaxScrollDepth: 75},
		{Score: 60, PageCount: 4},
		{Score: 140, PageCount: 5, Converted: true},
	}

	tiers := reports.TierDistribution(list)
	require.Len(t, tiers, 4)
	assert.Equal(t, reports.TierShare{Tier: "Cold", Count: 2, Percentage: 40}, tiers[0])
	assert.Equal(t, reports.TierShare{Tier: "Warm", Count: 1, Percentage: 20}, tiers[1])
	assert.Equal(t, reports.TierShare{Tier: "Hot", Count: 1, Percentage: 20}, tiers[2])
	assert.Equal(t, reports.TierShare{Tier: "Very Hot", Count: 1, Percentage: 20}, tiers[3])

	funnel := reports.Funnel(list)
	require.Len(t, funnel, 5)
	counts := make([]int, len(funnel))
	for i, stage := range funnel {
		counts[i] = stage.Count
	}
	assert.Equal(t, []int{5, 4, 3, 2, 1}, counts)
	assert.Equal(t, reports.StageConverted, funnel[4].Stage)
	assert.Equal(t, 20.0, funnel[4].Percentage)
	assert.Equal(t, 50.0, funnel[4].StepRate)

	t.Run("empty", func(t *testing.T) {
		for _, stage := range reports.Funnel(nil) {
			assert.Zero(t, stage.Count)
			assert.Zero(t, stage.Percentage)
			assert.Zero(t, stage.StepRate)
		}
		for _, tier := range reports.TierDistribution(nil) {
			assert.Zero(t, tier.Percentage)
		}
	})
}

func TestWeeklyCohorts(t *testing.T) {
	r, err := timeframe.NewRange(
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), // Monday
		time.Date(2026, 3, 22, 23, 0, 0, 0, time.UTC),
		time.UTC,
	)
	require.NoError(t, err)

	list := []sessions.Session{
		{Score: 10, StartedAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
		{Score: 70, Converted: true, StartedAt: time.Date(2026, 3, 8, 22, 0, 0, 0, time.UTC)},
		{Score: 5, StartedAt: time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)},
	}

	cohorts := reports.WeeklyCohorts(list, *r)
	require.Len(t, cohorts, 3)

	assert.Equal(t, "2026-03-02", cohorts[0].Week)
	assert.Equal(t, 2, cohorts[0].Sessions)
	assert.Equal(t, 1, cohorts[0].Conversions)
	assert.Equal(t, 1, cohorts[0].HotLeads)
	assert.Equal(t, 50.0, cohorts[0].ConversionRate)
	assert.Equal(t, 40.0, cohorts[0].AverageScore)

	assert.Equal(t, "2026-03-09", cohorts[1].Week)
	assert.Zero(t, cohorts[1].Sessions)
	assert.Zero(t, cohorts[1].ConversionRate)

	assert.Equal(t, "2026-03-16", cohorts[2].Week)
	assert.Equal(t, 1, cohorts[2].Sessions)
}

func TestConversionBreakdown(t *testing.T) {
	list := []sessions.Session{
		{Device: "desktop", Country: "de", Converted: true},
		{Device: "desktop", Country: "de"},
		{Device: "mobile", Country: "us"},
		{Device: "", Country: ""},
	}

	breakdown := reports.ConversionBreakdown(list)

	require.Len(t, breakdown.ByDevice, 3)
	assert.Equal(t, reports.Segment{Key: "desktop", Label: "Desktop", Sessions: 2, Conversions: 1, ConversionRate: 50}, breakdown.ByDevice[0])

	require.Len(t, breakdown.ByCountry, 3)
	assert.Equal(t, "Germany", breakdown.ByCountry[0].Label)
	labels := map[string]string{}
	for _, seg := range breakdown.ByCountry {
		labels[seg.Key] = seg.Label
	}
	assert.Equal(t, "United States", labels["us"])
	assert.Equal(t, "Unknown", labels[reports.UnknownSegment])
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Tablet", reports.DeviceLabel("tablet"))
	assert.Equal(t, "Unknown", reports.DeviceLabel(events.UnknownDevice))
	assert.Equal(t, "France", reports.CountryLabel("FR"))
	assert.Equal(t, "ZZ", reports.CountryLabel("zz"))
}

func TestEventVolume(t *testing.T) {
	volume := reports.EventVolume([]events.KindCount{
		{Kind: events.KindScrollDepth, Count: 1},
		{Kind: events.KindPageView, Count: 3},
	})
	require.Len(t, volume, 2)
	assert.Equal(t, reports.KindVolume{Kind: "page_view", Count: 3, Percentage: 75}, volume[0])
	assert.Empty(t, reports.EventVolume(nil))
}

func TestServiceSummary(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	base := time.Date(2025, 4, 7, 10, 0, 0, 0, time.UTC)

	testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		SessionID: "s1", Pages: []string{"/", "/pricing", "/contact"}, Score: 75,
		Converted: true, ConversionType: sessions.ConversionFormSubmission,
		Device: "desktop", Country: "de", StartedAt: base,
	})
	testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		SessionID: "s2", Pages: []string{"/blog/a"}, Score: 1, Device: "mobile", StartedAt: base.Add(time.Hour),
	})
	testsupport.CreateTestSession(t, db, testsupport.SessionFixture{
		SessionID: "admin", Pages: []string{"/admin/reports"}, Score: 30, StartedAt: base,
	})
	testsupport.CreateTestConversionPath(t, db, "s1", base.Add(10*time.Minute), "/", "/pricing", "/contact")
	testsupport.CreateTestEvent(t, db, "s1", events.KindPageView, "/", base, false)
	testsupport.CreateTestEvent(t, db, "s1", events.KindFormSubmitted, "/contact", base.Add(10*time.Minute), false)
	testsupport.CreateTestEvent(t, db, "bot", events.KindPageView, "/", base, true)
	testsupport.CreateTestEvent(t, db, "admin", events.KindPageView, "/admin/reports", base, false)

	r, err := timeframe.NewRange(base.Add(-24*time.Hour), base.Add(24*time.Hour), time.UTC)
	require.NoError(t, err)

	service := reports.NewService(dbManager, logger, reports.Options{AdminPathPrefix: "/admin", CacheTTL: time.Minute})
	summary, err := service.Summary(context.Background(), r)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Totals.Sessions)
	assert.Equal(t, 1, summary.Totals.Conversions)
	assert.Equal(t, 50.0, summary.Totals.ConversionRate)
	assert.Equal(t, 1, summary.Totals.HotLeads)
	assert.Equal(t, int64(2), summary.Totals.Events)

	require.Len(t, summary.FirstTouch, 1)
	assert.Equal(t, "/", summary.FirstTouch[0].Page)
	require.Len(t, summary.AssistPages, 1)
	assert.Equal(t, "/pricing", summary.AssistPages[0].Page)
	require.Len(t, summary.Paths, 1)
	assert.Equal(t, 100.0, summary.Paths[0].Percentage)

	t.Run("cached summaries survive new data until cleared", func(t *testing.T) {
		testsupport.CreateTestSession(t, db, testsupport.SessionFixture{SessionID: "s3", Pages: []string{"/"}, StartedAt: base})

		cached, err := service.Summary(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 2, cached.Totals.Sessions)

		service.ClearCache()
		fresh, err := service.Summary(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 3, fresh.Totals.Sessions)
	})
}
