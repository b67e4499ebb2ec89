package jobs

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"leadpulse/internal/config"
	"leadpulse/internal/pkg/geoip"
)

const (
	// GeoLite database is updated weekly by MaxMind
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	// MaxMind download URL template
	MaxMindDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz"
)

// GeoLiteUpdaterJob keeps the GeoLite2 City database used for page view
// geolocation fresh. The file's modification time is the last update.
type GeoLiteUpdaterJob struct {
	logger      *slog.Logger
	cfg         *config.Config
	client      *http.Client
	downloadURL string
	now         func() time.Time
}

// NewGeoLiteUpdaterJob creates a new GeoLite updater job
func NewGeoLiteUpdaterJob(logger *slog.Logger, cfg *config.Config) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		logger:      logger,
		cfg:         cfg,
		client:      &http.Client{Timeout: 5 * time.Minute},
		downloadURL: fmt.Sprintf(MaxMindDownloadURL, cfg.MaxMindLicenseKey),
		now:         time.Now,
	}
}

// Run downloads a new database when the current one is missing or older than
// GeoLiteUpdateInterval, then reloads it.
func (j *GeoLiteUpdaterJob) Run() error {
	if j.cfg.MaxMindLicenseKey == "" {
		j.logger.Debug("GeoLite license key not configured, skipping update")
		return nil
	}

	lastUpdate := j.lastUpdateTime()
	if j.now().Sub(lastUpdate) < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate),
			slog.Duration("age", j.now().Sub(lastUpdate)))
		return nil
	}

	j.logger.Info("Starting GeoLite database update",
		slog.Time("last_update", lastUpdate))

	if err := j.downloadAndUpdate(); err != nil {
		j.logger.Error("Failed to update GeoLite database", slog.Any("error", err))
		return err
	}

	// Reload the in-memory database so the ingestor can use it immediately
	geoip.ReloadGeoDB()

	j.logger.Info("GeoLite database updated successfully")
	return nil
}

func (j *GeoLiteUpdaterJob) dbPath() string {
	if j.cfg.GeoDBPath == "" {
		return filepath.Join("storage", "GeoLite2-City.mmdb")
	}
	return j.cfg.GeoDBPath
}

func (j *GeoLiteUpdaterJob) lastUpdateTime() time.Time {
	info, err := os.Stat(j.dbPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// downloadAndUpdate downloads the archive and atomically replaces the database file
func (j *GeoLiteUpdaterJob) downloadAndUpdate() error {
	geoDBPath := j.dbPath()

	dir := filepath.Dir(geoDBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	resp, err := j.client.Get(j.downloadURL)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	tmpPath := geoDBPath + ".tmp"
	if err := extractMMDB(resp.Body, tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to extract database: %w", err)
	}

	if err := os.Rename(tmpPath, geoDBPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace database: %w", err)
	}
	return nil
}

// extractMMDB copies the first .mmdb file of a tar.gz stream to destPath
func extractMMDB(archive io.Reader, destPath string) error {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		outFile, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			return fmt.Errorf("failed to extract file: %w", err)
		}
		return outFile.Close()
	}

	return fmt.Errorf("no .mmdb file found in archive")
}
