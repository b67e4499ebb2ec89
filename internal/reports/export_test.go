package reports_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"leadpulse/internal/attribution"
	"leadpulse/internal/events"
	"leadpulse/internal/reports"
	"leadpulse/internal/sessions"
	"leadpulse/internal/timeframe"
)

func TestWriteWorkbook(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	r, err := timeframe.NewRange(from, from.AddDate(0, 0, 7), time.UTC)
	require.NoError(t, err)

	summary := reports.Summarize(&reports.Dataset{
		Range: *r,
		Sessions: []sessions.Session{
			{SessionID: "a", Score: 60, Converted: true, Device: "desktop", Country: "DE", PageCount: 3, StartedAt: from.Add(time.Hour)},
			{SessionID: "b", Score: 5, Device: "mobile", PageCount: 1, StartedAt: from.Add(2 * time.Hour)},
		},
		Paths: []attribution.ConversionPath{path("/", "/pricing", "/contact")},
		EventCounts: []events.KindCount{
			{Kind: events.KindPageView, Count: 4},
			{Kind: events.KindFormSubmitted, Count: 1},
		},
	}, reports.DefaultPathSteps)

	var buf bytes.Buffer
	require.NoError(t, reports.WriteWorkbook(&buf, summary))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		reports.SheetTotals, reports.SheetFirstTouch, reports.SheetLastTouch, reports.SheetAssists,
		reports.SheetPaths, reports.SheetFunnel, reports.SheetTiers, reports.SheetCohorts,
		reports.SheetBreakdown, reports.SheetEventVolume,
	}, f.GetSheetList())

	sessionsCell, err := f.GetCellValue(reports.SheetTotals, "B2")
	require.NoError(t, err)
	assert.Equal(t, "2", sessionsCell)

	page, err := f.GetCellValue(reports.SheetFirstTouch, "A2")
	require.NoError(t, err)
	assert.Equal(t, "/", page)

	pathRows, err := f.GetRows(reports.SheetPaths)
	require.NoError(t, err)
	require.Len(t, pathRows, 2)
	assert.Equal(t, "/ → /pricing → /contact", pathRows[1][0])

	breakdownRows, err := f.GetRows(reports.SheetBreakdown)
	require.NoError(t, err)
	assert.Len(t, breakdownRows, 1+2+2)
}
