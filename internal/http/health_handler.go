package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"leadpulse/internal/pkg/geoip"
)

const healthProbeTimeout = 2 * time.Second

// HealthCheck probes one dependency. Only failing critical checks degrade the
// overall status; optional integrations report "unavailable" instead.
type HealthCheck struct {
	Name     string
	Critical bool
	Probe    func(ctx *cartridge.Context) error
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler runs the configured checks on every request.
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler creates a handler running checks in order.
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// DatabaseCheck pings the SQLite connection.
func DatabaseCheck() HealthCheck {
	return HealthCheck{
		Name:     "database",
		Critical: true,
		Probe: func(ctx *cartridge.Context) error {
			db := ctx.DBManager.GetConnection()
			if db == nil {
				return errors.New("database connection unavailable")
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
	}
}

// GeoIPCheck reports whether the GeoLite database is loaded.
func GeoIPCheck() HealthCheck {
	return HealthCheck{
		Name: "geoip",
		Probe: func(ctx *cartridge.Context) error {
			if !geoip.Available() {
				return geoip.ErrUnavailable
			}
			return nil
		},
	}
}

// PingCheck wraps a context-aware ping, e.g. of the shared rate limit store.
func PingCheck(name string, critical bool, ping func(ctx context.Context) error) HealthCheck {
	return HealthCheck{
		Name:     name,
		Critical: critical,
		Probe: func(ctx *cartridge.Context) error {
			probeCtx, cancel := context.WithTimeout(ctx.UserContext(), healthProbeTimeout)
			defer cancel()
			return ping(probeCtx)
		},
	}
}

// HealthIndexAction handles the health check endpoint.
func (h *HealthHandler) HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(h.checks)),
	}

	for _, check := range h.checks {
		err := check.Probe(ctx)
		switch {
		case err == nil:
			health.Checks[check.Name] = "ok"
		case check.Critical:
			health.Checks[check.Name] = "error"
			health.Status = "degraded"
			ctx.Logger.Error("Health check failed",
				slog.String("check", check.Name),
				slog.Any("error", err))
		default:
			health.Checks[check.Name] = "unavailable"
			ctx.Logger.Debug("Optional dependency unavailable",
				slog.String("check", check.Name),
				slog.Any("error", err))
		}
	}

	return ctx.JSON(health)
}
