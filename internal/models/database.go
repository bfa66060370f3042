package models

import (
	"fmt"

	"github.com/huangang/condovote/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	dialector, err := Dialector(cfg)
	if err != nil {
		return err
	}

	logLevel := logger.Warn
	if cfg.Debug {
		logLevel = logger.Info
	}

	db, err := Open(dialector, logger.Default.LogMode(logLevel))
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

// Dialector selects the gorm dialector for the configured driver
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Open connects with unique-constraint violations translated to
// gorm.ErrDuplicatedKey, which the engine relies on for its races.
func Open(dialector gorm.Dialector, log logger.Interface) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:         log,
		TranslateError: true,
	})
}

func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate creates the engine tables and the single-VOTING-item index
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Unit{},
		&Assembly{},
		&AgendaItem{},
		&Participant{},
		&Vote{},
		&SystemLog{},
		&SchedulerLock{},
	); err != nil {
		return err
	}

	// MySQL has no partial indexes; there the assembly row lock taken by
	// startVoting is the only guard.
	switch db.Dialector.Name() {
	case "sqlite", "postgres":
		return db.Exec(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_agenda_single_voting ON agenda_items (assembly_id) WHERE status = '" + AgendaVoting + "'",
		).Error
	}
	return nil
}

func GetDB() *gorm.DB {
	return DB
}
