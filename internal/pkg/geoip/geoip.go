package geoip

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"leadpulse/internal/config"
)

// cityReader is the part of *geoip2.Reader the package uses.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

var (
	reader cityReader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger
)

// ErrUnavailable is returned when no GeoLite2 database is loaded.
var ErrUnavailable = errors.New("geoip database unavailable")

// Location is the best-effort place an IP address resolves to.
type Location struct {
	CountryCode string
	Region      string
	City        string
}

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// InitGeoDB opens the GeoLite2 City database. Returns nil if the database is
// not configured or not found; geolocation is optional.
func InitGeoDB() *geoip2.Reader {
	cfg := config.GetConfig()
	if cfg.GeoDBPath == "" {
		if logger != nil {
			logger.Debug("GeoIP database path not configured - geolocation disabled")
		}
		return nil
	}

	if _, err := os.Stat(cfg.GeoDBPath); os.IsNotExist(err) {
		if logger != nil {
			logger.Info("GeoLite2 database not found - geolocation disabled",
				slog.String("path", cfg.GeoDBPath),
				slog.String("hint", "Download GeoLite2-City from https://www.maxmind.com/en/geolite2/signup"))
		}
		return nil
	} else if err != nil {
		if logger != nil {
			logger.Warn("Error checking GeoLite2 database file",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(cfg.GeoDBPath)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	if logger != nil {
		logger.Info("GeoLite2 database initialized",
			slog.String("path", cfg.GeoDBPath),
			slog.String("db_type", db.Metadata().DatabaseType))
	}
	return db
}

func load() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if db := InitGeoDB(); db != nil {
			reader = db
		}
	})
}

// Available reports whether a GeoLite2 database is loaded, loading it on first
// use.
func Available() bool {
	load()
	mu.RLock()
	defer mu.RUnlock()
	return reader != nil
}

// ReloadGeoDB reloads the GeoLite2 database from disk. It waits for in-flight
// lookups before closing the current reader.
func ReloadGeoDB() {
	once.Do(func() {})

	mu.Lock()
	defer mu.Unlock()

	if reader != nil {
		reader.Close()
		reader = nil
	}
	if db := InitGeoDB(); db != nil {
		reader = db
		if logger != nil {
			logger.Info("GeoLite2 database reloaded")
		}
	}
}

// Lookup resolves an IP against the loaded database. The read lock is held
// for the whole lookup so a concurrent reload cannot close the reader under it.
func Lookup(ipAddress string) (Location, error) {
	load()

	mu.RLock()
	defer mu.RUnlock()

	if reader == nil {
		return Location{}, ErrUnavailable
	}

	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		return Location{}, fmt.Errorf("invalid ip address %q", ipAddress)
	}

	record, err := reader.City(ip)
	if err != nil {
		return Location{}, fmt.Errorf("city lookup failed: %w", err)
	}

	location := Location{
		CountryCode: strings.ToLower(record.Country.IsoCode),
		City:        record.City.Names["en"],
	}
	if location.CountryCode == "--" {
		location.CountryCode = ""
	}
	if len(record.Subdivisions) > 0 {
		location.Region = record.Subdivisions[0].Names["en"]
	}
	return location, nil
}

// Locator resolves locations through the package-level database.
type Locator struct{}

// Locate implements the ingestor's geolocation dependency.
func (Locator) Locate(ipAddress string) (Location, error) {
	return Lookup(ipAddress)
}
