package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Workbook sheet names, in order.
const (
	SheetTotals      = "Totals"
	SheetFirstTouch  = "First Touch"
	SheetLastTouch   = "Last Touch"
	SheetAssists     = "Assist Pages"
	SheetPaths       = "Paths"
	SheetFunnel      = "Funnel"
	SheetTiers       = "Tiers"
	SheetCohorts     = "Cohorts"
	SheetBreakdown   = "Breakdown"
	SheetEventVolume = "Events"
)

type sheet struct {
	name string
	rows [][]any
}

// WriteWorkbook writes s as an .xlsx workbook with one sheet per report.
func WriteWorkbook(w io.Writer, s *Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range workbookSheets(s) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sh.name, err)
		}

		for r, row := range sh.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
				return fmt.Errorf("failed to write %s row %d: %w", sh.name, r+1, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func workbookSheets(s *Summary) []sheet {
	totals := sheet{name: SheetTotals, rows: [][]any{
		{"Range", s.Label},
		{"Sessions", s.Totals.Sessions},
		{"Conversions", s.Totals.Conversions},
		{"Conversion rate %", s.Totals.ConversionRate},
		{"Hot leads", s.Totals.HotLeads},
		{"Average score", s.Totals.AverageScore},
		{"Events", s.Totals.Events},
	}}

	first := sheet{name: SheetFirstTouch, rows: [][]any{{"Page", "Conversions", "Share %"}}}
	for _, p := range s.FirstTouch {
		first.rows = append(first.rows, []any{p.Page, p.Count, p.Percentage})
	}
	last := sheet{name: SheetLastTouch, rows: [][]any{{"Page", "Conversions", "Share %"}}}
	for _, p := range s.LastTouch {
		last.rows = append(last.rows, []any{p.Page, p.Count, p.Percentage})
	}

	assists := sheet{name: SheetAssists, rows: [][]any{{"Page", "Assists", "Influence %"}}}
	for _, a := range s.AssistPages {
		assists.rows = append(assists.rows, []any{a.Page, a.AssistCount, a.InfluenceScore})
	}

	paths := sheet{name: SheetPaths, rows: [][]any{{"Path", "Length", "Conversions", "Share %"}}}
	for _, p := range s.Paths {
		paths.rows = append(paths.rows, []any{p.Path, p.Length, p.Count, p.Percentage})
	}

	funnel := sheet{name: SheetFunnel, rows: [][]any{{"Stage", "Sessions", "Share %", "Step rate %"}}}
	for _, st := range s.Funnel {
		funnel.rows = append(funnel.rows, []any{st.Stage, st.Count, st.Percentage, st.StepRate})
	}

	tiers := sheet{name: SheetTiers, rows: [][]any{{"Tier", "Sessions", "Share %"}}}
	for _, t := range s.Tiers {
		tiers.rows = append(tiers.rows, []any{t.Tier, t.Count, t.Percentage})
	}

	cohorts := sheet{name: SheetCohorts, rows: [][]any{{"Week", "Sessions", "Hot leads", "Conversions", "Conversion rate %", "Average score"}}}
	for _, c := range s.Cohorts {
		cohorts.rows = append(cohorts.rows, []any{c.Week, c.Sessions, c.HotLeads, c.Conversions, c.ConversionRate, c.AverageScore})
	}

	breakdown := sheet{name: SheetBreakdown, rows: [][]any{{"Dimension", "Segment", "Sessions", "Conversions", "Conversion rate %"}}}
	for _, seg := range s.Breakdown.ByDevice {
		breakdown.rows = append(breakdown.rows, []any{"Device", seg.Label, seg.Sessions, seg.Conversions, seg.ConversionRate})
	}
	for _, seg := range s.Breakdown.ByCountry {
		breakdown.rows = append(breakdown.rows, []any{"Country", seg.Label, seg.Sessions, seg.Conversions, seg.ConversionRate})
	}

	volume := sheet{name: SheetEventVolume, rows: [][]any{{"Kind", "Events", "Share %"}}}
	for _, k := range s.Events {
		volume.rows = append(volume.rows, []any{k.Kind, k.Count, k.Percentage})
	}

	return []sheet{totals, first, last, assists, paths, funnel, tiers, cohorts, breakdown, volume}
}
