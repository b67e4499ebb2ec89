package http

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/attribution"
	"leadpulse/internal/events"
	"leadpulse/internal/sessions"
	"leadpulse/internal/timeframe"
)

const eventsPerPage = 50

type PaginationData struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int   `json:"per_page"`
}

type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      events.Kind `json:"kind"`
	Page      string      `json:"page"`
	SessionID string      `json:"session_id"`
	VisitorID string      `json:"visitor_id"`
	Device    string      `json:"device"`
	Country   string      `json:"country,omitempty"`
	Company   string      `json:"company,omitempty"`
	Bot       string      `json:"bot,omitempty"`
}

type EventsResponse struct {
	Success    bool           `json:"success"`
	Events     []Event        `json:"events"`
	Pagination PaginationData `json:"pagination"`
}

// SessionResponse is a single session with its conversion paths and events.
type SessionResponse struct {
	Success         bool                         `json:"success"`
	Session         *sessions.Session            `json:"session"`
	ConversionPaths []attribution.ConversionPath `json:"conversion_paths"`
	Events          []Event                      `json:"events"`
}

// EventsIndexAction lists stored events, newest first.
func EventsIndexAction(ctx *cartridge.Context) error {
	r, err := timeframe.NewParser().Parse(timeframe.ParserParams{
		Days:     ctx.Query("days"),
		FromDate: ctx.Query("from"),
		ToDate:   ctx.Query("to"),
		Tz:       ctx.Query("tz"),
	})
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
			"code":    "INVALID_RANGE",
		})
	}

	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	includeBots, _ := strconv.ParseBool(ctx.Query("bots", "false"))

	result, err := events.GetFilteredEvents(ctx.DB(), events.EventFilters{
		FromDate:    r.From,
		ToDate:      r.To,
		SessionID:   ctx.Query("session"),
		VisitorID:   ctx.Query("visitor"),
		Kind:        events.Kind(ctx.Query("kind")),
		PageFilter:  ctx.Query("page_contains"),
		IncludeBots: includeBots,
		Limit:       eventsPerPage,
		Offset:      (page - 1) * eventsPerPage,
	})
	if err != nil {
		ctx.Logger.Error("Failed to fetch events", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to fetch events",
			"code":    "QUERY_ERROR",
		})
	}

	return ctx.JSON(EventsResponse{
		Success: true,
		Events:  mapEvents(result.Events),
		Pagination: PaginationData{
			CurrentPage: page,
			TotalPages:  (int(result.Total) + eventsPerPage - 1) / eventsPerPage,
			TotalItems:  result.Total,
			PerPage:     eventsPerPage,
		},
	})
}

// SessionShowAction returns one session by its client session ID.
func SessionShowAction(ctx *cartridge.Context) error {
	db := ctx.DB()
	sessionID := ctx.Params("sessionId")

	session, err := sessions.GetBySessionID(db, sessionID)
	if err != nil {
		var notFound *sessions.SessionNotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Session not found",
				"code":    "SESSION_NOT_FOUND",
			})
		}
		ctx.Logger.Error("Failed to load session", slog.String("session_id", sessionID), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load session",
			"code":    "QUERY_ERROR",
		})
	}

	paths, err := attribution.GetBySession(db, sessionID)
	if err != nil {
		ctx.Logger.Warn("Failed to load conversion paths", slog.String("session_id", sessionID), slog.Any("error", err))
		paths = []attribution.ConversionPath{}
	}

	result, err := events.GetFilteredEvents(db, events.EventFilters{
		ToDate:      time.Now().Add(24 * time.Hour),
		SessionID:   sessionID,
		IncludeBots: true,
		Limit:       500,
	})
	if err != nil {
		ctx.Logger.Warn("Failed to load session events", slog.String("session_id", sessionID), slog.Any("error", err))
	}

	return ctx.JSON(SessionResponse{
		Success:         true,
		Session:         session,
		ConversionPaths: paths,
		Events:          mapEvents(result.Events),
	})
}

func mapEvents(list []events.Event) []Event {
	mapped := make([]Event, len(list))
	for i, event := range list {
		mapped[i] = Event{
			ID:        event.ID,
			Timestamp: event.Timestamp,
			Kind:      event.Type,
			Page:      event.Page,
			SessionID: event.SessionID,
			VisitorID: event.VisitorID,
			Device:    event.Device,
			Country:   event.Country,
			Company:   event.CompanyName,
			Bot:       event.BotName,
		}
	}
	return mapped
}
