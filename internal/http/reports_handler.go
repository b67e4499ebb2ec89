package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/reports"
	"leadpulse/internal/timeframe"
)

// reportSections maps a report name to the part of the summary it serves.
var reportSections = map[string]func(s *reports.Summary) fiber.Map{
	"attribution": func(s *reports.Summary) fiber.Map {
		return fiber.Map{
			"totals":      s.Totals,
			"firstTouch":  s.FirstTouch,
			"lastTouch":   s.LastTouch,
			"assistPages": s.AssistPages,
		}
	},
	"paths":     func(s *reports.Summary) fiber.Map { return fiber.Map{"paths": s.Paths} },
	"funnel":    func(s *reports.Summary) fiber.Map { return fiber.Map{"funnel": s.Funnel} },
	"tiers":     func(s *reports.Summary) fiber.Map { return fiber.Map{"tiers": s.Tiers} },
	"cohorts":   func(s *reports.Summary) fiber.Map { return fiber.Map{"cohorts": s.Cohorts} },
	"breakdown": func(s *reports.Summary) fiber.Map { return fiber.Map{"breakdown": s.Breakdown} },
	"events":    func(s *reports.Summary) fiber.Map { return fiber.Map{"events": s.Events} },
}

// ReportSections returns the names served by ReportSectionAction.
func ReportSections() []string {
	return []string{"attribution", "paths", "funnel", "tiers", "cohorts", "breakdown", "events"}
}

// ReportsHandler serves the batch reports.
type ReportsHandler struct {
	service *reports.Service
	parser  *timeframe.Parser
}

// NewReportsHandler creates the handler. parser may be nil.
func NewReportsHandler(service *reports.Service, parser *timeframe.Parser) *ReportsHandler {
	if parser == nil {
		parser = timeframe.NewParser()
	}
	return &ReportsHandler{service: service, parser: parser}
}

// ReportSummaryAction returns every report for the requested range.
func (h *ReportsHandler) ReportSummaryAction(ctx *cartridge.Context) error {
	summary, err := h.load(ctx)
	if err != nil {
		return err
	}
	if summary == nil {
		return nil
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"summary": summary,
	})
}

// ReportSectionAction returns one named report for the requested range.
func (h *ReportsHandler) ReportSectionAction(name string) func(ctx *cartridge.Context) error {
	section, ok := reportSections[name]
	if !ok {
		panic("unknown report section " + name)
	}

	return func(ctx *cartridge.Context) error {
		summary, err := h.load(ctx)
		if err != nil {
			return err
		}
		if summary == nil {
			return nil
		}

		body := section(summary)
		body["success"] = true
		body["report"] = name
		body["from"] = summary.From
		body["to"] = summary.To
		body["label"] = summary.Label
		return ctx.JSON(body)
	}
}

// load parses the range and fetches the summary. A nil summary with a nil
// error means an error response has already been written.
func (h *ReportsHandler) load(ctx *cartridge.Context) (*reports.Summary, error) {
	r, err := h.parser.Parse(timeframe.ParserParams{
		Days:     ctx.Query("days"),
		FromDate: ctx.Query("from"),
		ToDate:   ctx.Query("to"),
		Tz:       ctx.Query("tz"),
	})
	if err != nil {
		ctx.Logger.Debug("Invalid report range",
			slog.String("days", ctx.Query("days")),
			slog.String("from", ctx.Query("from")),
			slog.String("to", ctx.Query("to")),
			slog.Any("error", err))
		return nil, ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
			"code":    "INVALID_RANGE",
		})
	}

	summary, err := h.service.Summary(ctx.UserContext(), r)
	if err != nil {
		ctx.Logger.Error("Failed to build report",
			slog.String("path", ctx.Path()),
			slog.String("range", r.Label()),
			slog.Any("error", err))
		return nil, ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to build report",
			"code":    "REPORT_ERROR",
		})
	}
	return summary, nil
}
