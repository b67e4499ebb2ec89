package testsupport

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadpulse/internal"
	"leadpulse/internal/attribution"
	"leadpulse/internal/config"
	"leadpulse/internal/database"
	"leadpulse/internal/events"
	"leadpulse/internal/scoring"
	"leadpulse/internal/sessions"
)

func init() {
	if os.Getenv("LEADPULSE_ENV") == "" {
		os.Setenv("LEADPULSE_ENV", config.Test)
	}
}

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set LEADPULSE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestEvent inserts a stored event directly.
func CreateTestEvent(t *testing.T, db *gorm.DB, sessionID string, kind events.Kind, page string, timestamp time.Time, isBot bool) *events.Event {
	t.Helper()

	event := &events.Event{
		ID:        events.NewEventID(),
		Type:      kind,
		Page:      page,
		Timestamp: timestamp,
		VisitorID: "visitor-" + sessionID,
		SessionID: sessionID,
		Browser:   "chrome",
		OS:        "Windows",
		Device:    "desktop",
		IsBot:     isBot,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

// SessionFixture describes a stored session for report tests.
type SessionFixture struct {
	SessionID      string
	EntryPage      string
	Pages          []string
	Score          int
	Converted      bool
	ConversionType string
	Device         string
	Country        string
	ReferrerSource string
	ReferrerMedium string
	EventCount     int
	StartedAt      time.Time
}

// CreateTestSession inserts a session directly.
func CreateTestSession(t *testing.T, db *gorm.DB, f SessionFixture) *sessions.Session {
	t.Helper()

	if f.StartedAt.IsZero() {
		f.StartedAt = time.Now().UTC()
	}
	if f.EntryPage == "" && len(f.Pages) > 0 {
		f.EntryPage = f.Pages[0]
	}
	if f.EventCount == 0 {
		f.EventCount = max(len(f.Pages), 1)
	}

	session := &sessions.Session{
		SessionID:      f.SessionID,
		VisitorID:      "visitor-" + f.SessionID,
		EntryPage:      f.EntryPage,
		Pages:          f.Pages,
		PageCount:      len(f.Pages),
		Score:          f.Score,
		Tier:           scoring.TierFor(f.Score).String(),
		Converted:      f.Converted,
		ConversionType: f.ConversionType,
		Device:         f.Device,
		Country:        f.Country,
		ReferrerSource: f.ReferrerSource,
		ReferrerMedium: f.ReferrerMedium,
		EventCount:     f.EventCount,
		StartedAt:      f.StartedAt,
		LastSeenAt:     f.StartedAt,
	}
	if session.Pages == nil {
		session.Pages = []string{}
	}
	if f.Converted {
		convertedAt := f.StartedAt
		session.ConvertedAt = &convertedAt
	}
	require.NoError(t, db.Create(session).Error)
	return session
}

// CreateTestConversionPath inserts a conversion path for the given pages.
func CreateTestConversionPath(t *testing.T, db *gorm.DB, sessionID string, convertedAt time.Time, pages ...string) *attribution.ConversionPath {
	t.Helper()

	steps := make([]attribution.Step, len(pages))
	for i, page := range pages {
		steps[i] = attribution.Step{Page: page, Timestamp: convertedAt.Add(time.Duration(i-len(pages)) * time.Minute)}
	}
	path, ok := attribution.BuildPath(attribution.Input{
		SessionID:      sessionID,
		VisitorID:      "visitor-" + sessionID,
		ConversionType: sessions.ConversionFormSubmission,
		ConversionPage: pages[len(pages)-1],
		Journey:        steps,
		ConvertedAt:    convertedAt,
	})
	require.True(t, ok)
	require.NoError(t, db.Create(path).Error)
	return path
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted
// against db and the given services.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB, services *internal.Services) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Enable SecFetchSite validation in tests to match production behavior
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountRoutes(services)(srv)
	return srv.App()
}

// CreateHandlerTestApp mounts a single GET handler on a bare cartridge
// server backed by db.
func CreateHandlerTestApp(t *testing.T, db *gorm.DB, path string, handler func(*cartridge.Context) error) *fiber.App {
	t.Helper()

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = config.GetConfig()
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	srv.Get(path, handler, &cartridge.RouteConfig{EnableSecFetchSite: cartridge.Bool(false)})
	return srv.App()
}

// NewJSONRequest builds a request the way the browser script sends it.
func NewJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	return req
}
