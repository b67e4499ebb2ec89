// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	MaxMindLicenseKey     string `mapstructure:"maxmindlicensekey"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Scoring and session caps
	MaxSessionPages int `mapstructure:"maxsessionpages"`
	MaxSessionScore int `mapstructure:"maxsessionscore"`
	MaxJourneySteps int `mapstructure:"maxjourneysteps"`

	// Enrichment
	EnrichmentTimeoutMs int    `mapstructure:"enrichmenttimeoutms"`
	CompanyLookupURL    string `mapstructure:"companylookupurl"`
	CompanyLookupToken  string `mapstructure:"companylookuptoken"`

	// Notifications
	SlackWebhookURL  string `mapstructure:"slackwebhookurl"`
	NotifyTier       string `mapstructure:"notifytier"`
	NotifyTimeoutMs  int    `mapstructure:"notifytimeoutms"`
	DedupeCapacity   int    `mapstructure:"dedupecapacity"`
	DedupeTTLHours   int    `mapstructure:"dedupettlhours"`
	DashboardBaseURL string `mapstructure:"dashboardbaseurl"`

	// Rate limiting (Redis is optional; in-memory limiter otherwise)
	RedisAddr              string `mapstructure:"redisaddr"`
	RedisPassword          string `mapstructure:"redispassword"`
	RedisDB                int    `mapstructure:"redisdb"`
	RateLimitMax           int    `mapstructure:"ratelimitmax"`
	RateLimitWindowSeconds int    `mapstructure:"ratelimitwindowseconds"`

	// Reports
	ReportsAPIKeyHash string `mapstructure:"reportsapikeyhash"`
	AdminPathPrefix   string `mapstructure:"adminpathprefix"`
	PathMaxSteps      int    `mapstructure:"pathmaxsteps"`
	ReportCacheTTLSec int    `mapstructure:"reportcachettlseconds"`

	// Job scheduling settings
	CleanupSchedule        string `mapstructure:"cleanupschedule"`
	GeoLiteUpdateSchedule  string `mapstructure:"geoliteupdateschedule"`
	DedupeSweepIntervalSec int    `mapstructure:"dedupesweepintervalseconds"`

	// Data retention settings
	EventRetentionDays int `mapstructure:"eventretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "leadpulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("maxmindlicensekey", "")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("maxsessionpages", 100)
		v.SetDefault("maxsessionscore", 10000)
		v.SetDefault("maxjourneysteps", 50)
		v.SetDefault("enrichmenttimeoutms", 1500)
		v.SetDefault("companylookupurl", "")
		v.SetDefault("companylookuptoken", "")
		v.SetDefault("slackwebhookurl", "")
		v.SetDefault("notifytier", "hot")
		v.SetDefault("notifytimeoutms", 3000)
		v.SetDefault("dedupecapacity", 10000)
		v.SetDefault("dedupettlhours", 24)
		v.SetDefault("dashboardbaseurl", "")
		v.SetDefault("redisaddr", "")
		v.SetDefault("redispassword", "")
		v.SetDefault("redisdb", 0)
		v.SetDefault("ratelimitmax", 120)
		v.SetDefault("ratelimitwindowseconds", 60)
		v.SetDefault("reportsapikeyhash", "")
		v.SetDefault("adminpathprefix", "/admin")
		v.SetDefault("pathmaxsteps", 5)
		v.SetDefault("reportcachettlseconds", 300)
		v.SetDefault("cleanupschedule", "0 3 * * *")
		v.SetDefault("geoliteupdateschedule", "30 4 * * *")
		v.SetDefault("dedupesweepintervalseconds", 300)
		v.SetDefault("eventretentiondays", 365)

		v.BindEnv("appname", "LEADPULSE_APP_NAME")
		v.BindEnv("appport", "LEADPULSE_APP_PORT")
		v.BindEnv("environment", "LEADPULSE_ENV")
		v.BindEnv("loglevel", "LEADPULSE_LOG_LEVEL")
		v.BindEnv("privatekey", "LEADPULSE_PRIVATE_KEY")
		v.BindEnv("storagepath", "LEADPULSE_STORAGE_PATH")
		v.BindEnv("geodbpath", "LEADPULSE_GEO_DB_PATH")
		v.BindEnv("maxmindlicensekey", "LEADPULSE_MAXMIND_LICENSE_KEY")
		v.BindEnv("publicdir", "LEADPULSE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "LEADPULSE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "LEADPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "LEADPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "LEADPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "LEADPULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "LEADPULSE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "LEADPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "LEADPULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("maxsessionpages", "LEADPULSE_MAX_SESSION_PAGES")
		v.BindEnv("maxsessionscore", "LEADPULSE_MAX_SESSION_SCORE")
		v.BindEnv("maxjourneysteps", "LEADPULSE_MAX_JOURNEY_STEPS")
		v.BindEnv("enrichmenttimeoutms", "LEADPULSE_ENRICHMENT_TIMEOUT_MS")
		v.BindEnv("companylookupurl", "LEADPULSE_COMPANY_LOOKUP_URL")
		v.BindEnv("companylookuptoken", "LEADPULSE_COMPANY_LOOKUP_TOKEN")
		v.BindEnv("slackwebhookurl", "LEADPULSE_SLACK_WEBHOOK_URL")
		v.BindEnv("notifytier", "LEADPULSE_NOTIFY_TIER")
		v.BindEnv("notifytimeoutms", "LEADPULSE_NOTIFY_TIMEOUT_MS")
		v.BindEnv("dedupecapacity", "LEADPULSE_DEDUPE_CAPACITY")
		v.BindEnv("dedupettlhours", "LEADPULSE_DEDUPE_TTL_HOURS")
		v.BindEnv("dashboardbaseurl", "LEADPULSE_DASHBOARD_BASE_URL")
		v.BindEnv("redisaddr", "LEADPULSE_REDIS_ADDR")
		v.BindEnv("redispassword", "LEADPULSE_REDIS_PASSWORD")
		v.BindEnv("redisdb", "LEADPULSE_REDIS_DB")
		v.BindEnv("ratelimitmax", "LEADPULSE_RATE_LIMIT_MAX")
		v.BindEnv("ratelimitwindowseconds", "LEADPULSE_RATE_LIMIT_WINDOW_SECONDS")
		v.BindEnv("reportsapikeyhash", "LEADPULSE_REPORTS_API_KEY_HASH")
		v.BindEnv("adminpathprefix", "LEADPULSE_ADMIN_PATH_PREFIX")
		v.BindEnv("pathmaxsteps", "LEADPULSE_PATH_MAX_STEPS")
		v.BindEnv("reportcachettlseconds", "LEADPULSE_REPORT_CACHE_TTL_SECONDS")
		v.BindEnv("cleanupschedule", "LEADPULSE_CLEANUP_SCHEDULE")
		v.BindEnv("geoliteupdateschedule", "LEADPULSE_GEOLITE_UPDATE_SCHEDULE")
		v.BindEnv("dedupesweepintervalseconds", "LEADPULSE_DEDUPE_SWEEP_INTERVAL_SECONDS")
		v.BindEnv("eventretentiondays", "LEADPULSE_EVENT_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique LEADPULSE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	switch strings.ToLower(c.NotifyTier) {
	case "cold", "warm", "hot", "very_hot", "very hot":
	default:
		return fmt.Errorf("invalid notify tier: %s", c.NotifyTier)
	}

	if c.MaxSessionPages <= 0 || c.MaxJourneySteps < 2 || c.MaxSessionScore <= 0 {
		return fmt.Errorf("session caps must be positive (pages=%d, journey=%d, score=%d)",
			c.MaxSessionPages, c.MaxJourneySteps, c.MaxSessionScore)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// Tests use a single connection; other environments allow concurrent report reads.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// EnrichmentTimeout bounds geolocation and company lookups for a single event.
func (c *Config) EnrichmentTimeout() time.Duration {
	return time.Duration(c.EnrichmentTimeoutMs) * time.Millisecond
}

// NotifyTimeout bounds a single webhook delivery.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutMs) * time.Millisecond
}

// DedupeTTL is how long a sent notification key suppresses repeats.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLHours) * time.Hour
}

// RateLimitWindow is the sliding window used by the ingestion rate limiter.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// ReportCacheTTL is how long summaries of closed ranges stay cached.
func (c *Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSec) * time.Second
}

// DedupeSweepInterval is how often expired notification keys are dropped.
func (c *Config) DedupeSweepInterval() time.Duration {
	return time.Duration(c.DedupeSweepIntervalSec) * time.Second
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
