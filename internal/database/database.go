package database

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"leadpulse/internal/attribution"
	"leadpulse/internal/config"
	"leadpulse/internal/events"
	"leadpulse/internal/sessions"
)

// DBManager wraps cartridge's sqlite.Manager with leadpulse migrations.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.DatabaseName,
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init initializes the database connection.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// Models lists every table the service owns.
func Models() []any {
	return []any{
		&events.Event{},
		&sessions.Session{},
		&attribution.ConversionPath{},
	}
}

// MigrateDatabase creates or updates the events, sessions and conversion
// path tables.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// TableCount is the number of rows in one table.
type TableCount struct {
	Table string
	Rows  int64
}

// RowCounts counts the rows of every table in Models.
func (dm *DBManager) RowCounts() ([]TableCount, error) {
	db := dm.GetConnection()
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}

	counts := make([]TableCount, 0, len(Models()))
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("failed to parse model %T: %w", model, err)
		}

		var rows int64
		if err := db.Model(model).Count(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", stmt.Schema.Table, err)
		}
		counts = append(counts, TableCount{Table: stmt.Schema.Table, Rows: rows})
	}
	return counts, nil
}
