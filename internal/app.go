// Package internal contains core application functionality
package internal

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"leadpulse/internal/config"
	"leadpulse/internal/database"
	"leadpulse/internal/ingest"
	"leadpulse/internal/jobs"
	"leadpulse/internal/notify"
	"leadpulse/internal/pkg/company"
	"leadpulse/internal/pkg/geoip"
	"leadpulse/internal/ratelimit"
	"leadpulse/internal/reports"
	"leadpulse/internal/scoring"
	"leadpulse/internal/sessions"
)

// Application wraps cartridge.Application with leadpulse-specific components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Services  *Services
	Scheduler *jobs.Scheduler
}

// Services are the long-lived components shared by the HTTP handlers and the
// background jobs.
type Services struct {
	Config      *config.Config
	Logger      *slog.Logger
	Ingestor    *ingest.Ingestor
	Reports     *reports.Service
	Dedup       *notify.Dedup
	RateLimiter fiber.Handler

	redis *ratelimit.RedisCounter
}

// NewServices builds the ingestor, the report service and the rate limiter
// from cfg. Optional integrations stay disabled when not configured.
func NewServices(cfg *config.Config, logger *slog.Logger, conn reports.Connector) (*Services, error) {
	watchTier, err := scoring.ParseTier(cfg.NotifyTier)
	if err != nil {
		return nil, fmt.Errorf("invalid notify tier: %w", err)
	}

	var notifier notify.Notifier
	if cfg.SlackWebhookURL != "" {
		slack, err := notify.NewSlack(notify.SlackConfig{
			WebhookURL:   cfg.SlackWebhookURL,
			DashboardURL: cfg.DashboardBaseURL,
			Timeout:      cfg.NotifyTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure slack notifier: %w", err)
		}
		notifier = slack
	} else {
		logger.Info("Slack webhook not configured - lead notifications disabled")
	}

	var companies ingest.CompanyResolver
	if cfg.CompanyLookupURL != "" {
		resolver, err := company.NewResolver(company.Config{
			BaseURL: cfg.CompanyLookupURL,
			Token:   cfg.CompanyLookupToken,
			Timeout: cfg.EnrichmentTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure company resolver: %w", err)
		}
		companies = resolver
	}

	geoip.InitLogger(logger)

	dedup := notify.NewDedup(cfg.DedupeCapacity, cfg.DedupeTTL())
	dispatcher := notify.NewDispatcher(notifier, dedup, notify.Options{
		WatchTier: watchTier,
		Timeout:   cfg.NotifyTimeout(),
	}, logger)

	services := &Services{
		Config: cfg,
		Logger: logger,
		Ingestor: ingest.New(geoip.Locator{}, companies, dispatcher, ingest.Options{
			Caps: sessions.Caps{
				MaxPages: cfg.MaxSessionPages,
				MaxScore: cfg.MaxSessionScore,
			},
			MaxJourneySteps:   cfg.MaxJourneySteps,
			EnrichmentTimeout: cfg.EnrichmentTimeout(),
		}),
		Reports: reports.NewService(conn, logger, reports.Options{
			AdminPathPrefix: cfg.AdminPathPrefix,
			PathMaxSteps:    cfg.PathMaxSteps,
			CacheTTL:        cfg.ReportCacheTTL(),
		}),
		Dedup: dedup,
	}
	services.RateLimiter = services.newRateLimiter()

	return services, nil
}

// newRateLimiter prefers the shared Redis limiter and falls back to the
// in-process one when Redis is not configured or unreachable.
func (s *Services) newRateLimiter() fiber.Handler {
	cfg := s.Config
	if cfg.RedisAddr != "" {
		counter, err := ratelimit.NewRedisCounter(ratelimit.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err == nil {
			s.redis = counter
			s.Logger.Info("Using Redis rate limiter", slog.String("addr", cfg.RedisAddr))
			return ratelimit.New(counter, ratelimit.Options{
				Max:    cfg.RateLimitMax,
				Window: cfg.RateLimitWindow(),
			}, s.Logger)
		}
		s.Logger.Warn("Redis rate limiter unavailable, using in-memory limiter",
			slog.String("addr", cfg.RedisAddr),
			slog.Any("error", err))
	}

	return cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(cfg.RateLimitMax),
		cartridgemiddleware.WithDuration(cfg.RateLimitWindow()),
	)
}

// Close waits for in-flight notifications and releases external connections.
func (s *Services) Close() error {
	if dispatcher := s.Ingestor.Dispatcher(); dispatcher != nil {
		dispatcher.Wait()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	services, err := NewServices(cfg, logger, dbManager)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	scheduler, err := jobs.NewScheduler(dbManager, cfg, logger, jobs.Options{
		Dedup:     services.Dedup,
		OnCleanup: services.Reports.ClearCache,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountRoutes(services),
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    services,
		Scheduler:   scheduler,
	}, nil
}
