// Package v1 serves the public event ingestion API called by the browser
// tracking script.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"leadpulse/internal/ingest"
)

const (
	errInternal = "Failed to record event"

	codeValidation = "VALIDATION_ERROR"
	codeIngest     = "INGEST_ERROR"
)

// EventsHandler exposes the ingestor over HTTP.
type EventsHandler struct {
	ingestor *ingest.Ingestor
}

// NewEventsHandler creates the handler.
func NewEventsHandler(ingestor *ingest.Ingestor) *EventsHandler {
	return &EventsHandler{ingestor: ingestor}
}

// CreateEventAction records one event and returns the session's updated
// score and tier.
func (h *EventsHandler) CreateEventAction(ctx *cartridge.Context) error {
	req, err := ingest.DecodeRequest(ctx.Body())
	if err != nil {
		ctx.Logger.Debug("Rejected event request", slog.Any("error", err))
		return handleError(ctx, err)
	}

	result, err := h.ingestor.Ingest(ctx.UserContext(), ctx.DB(), ctx.Logger, req, clientInfo(ctx))
	if err != nil {
		return handleError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success":   true,
		"eventId":   result.EventID,
		"leadScore": result.Score,
		"leadTier":  result.Tier.String(),
	})
}

// CreateEventBeaconAction handles events sent with navigator.sendBeacon,
// which posts text/plain and ignores the response. It always answers 204.
func (h *EventsHandler) CreateEventBeaconAction(ctx *cartridge.Context) error {
	req, err := ingest.DecodeRequest(ctx.Body())
	if err != nil {
		ctx.Logger.Debug("Rejected beacon request", slog.Any("error", err))
		return ctx.SendStatus(http.StatusNoContent)
	}

	if _, err := h.ingestor.Ingest(ctx.UserContext(), ctx.DB(), ctx.Logger, req, clientInfo(ctx)); err != nil {
		ctx.Logger.Error("Failed to record beacon event",
			slog.String("session_id", req.SessionID),
			slog.Any("error", err))
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func clientInfo(ctx *cartridge.Context) ingest.ClientInfo {
	userAgent := ctx.Get(fiber.HeaderUserAgent)
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}
	return ingest.ClientInfo{
		IP:        getClientIP(ctx.Ctx, ctx.Logger),
		UserAgent: userAgent,
	}
}

func handleError(ctx *cartridge.Context, err error) error {
	var validationErr *ingest.ValidationError
	if errors.As(err, &validationErr) {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   validationErr.Message,
			"field":   validationErr.Field,
			"code":    codeValidation,
		})
	}

	ctx.Logger.Error("Failed to ingest event",
		slog.String("path", ctx.Path()),
		slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   errInternal,
		"code":    codeIngest,
	})
}
