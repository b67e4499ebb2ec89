package internal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"

	v1 "leadpulse/api/v1"
	"leadpulse/internal/http"
	"leadpulse/internal/http/middleware"
	"leadpulse/internal/metrics"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// The tracking script posts from any marketing site.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountRoutes returns the route mount function for services.
func MountRoutes(services *Services) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		mountRoutes(srv, services)
	}
}

func mountRoutes(srv *cartridge.Server, services *Services) {
	cfg := services.Config
	logger := srv.GetLogger()

	// ============================================
	// PUBLIC ENDPOINT PROTECTION
	// - Rate limiting (production only)
	// - CORS (permissive for cross-origin tracking)
	// - Sec-Fetch-Site validation from the global middleware
	// ============================================

	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}
	publicRateLimiter := conditionalRateLimiter(services.RateLimiter)

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	// Event ingestion: CORS runs first so 403/429 responses carry CORS headers
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Reports are read by scripts and dashboards, not browsers
	reportsAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.ReportsAPIKeyAuth(cfg.ReportsAPIKeyHash, logger),
		},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	internalConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	events := v1.NewEventsHandler(services.Ingestor)
	reports := http.NewReportsHandler(services.Reports, nil)

	checks := []http.HealthCheck{http.DatabaseCheck(), http.GeoIPCheck()}
	if services.redis != nil {
		checks = append(checks, http.PingCheck("redis", false, services.redis.Ping))
	}
	health := http.NewHealthHandler(checks...)

	// === ROOT ROUTES ===
	srv.Get("/_health", health.HealthIndexAction, internalConfig)
	srv.Head("/_health", health.HealthIndexAction, internalConfig)

	promHandler := metrics.Handler()
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return promHandler(ctx.Ctx)
	}, internalConfig)

	// === PUBLIC API ===
	srv.Post("/x/api/v1/events", events.CreateEventAction, publicAPIConfig)
	srv.Options("/x/api/v1/events", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Post("/x/api/v1/events/beacon", events.CreateEventBeaconAction, publicAPIConfig)
	srv.Options("/x/api/v1/events/beacon", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === REPORTS API ===
	prefix := "/admin/api/reports"
	srv.Get(prefix+"/summary", reports.ReportSummaryAction, reportsAPIConfig)
	for _, name := range http.ReportSections() {
		srv.Get(prefix+"/"+name, reports.ReportSectionAction(name), reportsAPIConfig)
	}
	srv.Get("/admin/api/events", http.EventsIndexAction, reportsAPIConfig)
	srv.Get("/admin/api/sessions/:sessionId", http.SessionShowAction, reportsAPIConfig)
}
