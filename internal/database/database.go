package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"skimeister/internal/config"
	"skimeister/internal/models"
)

// GormDB wraps the resort store
type GormDB struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the configured database type and verifies the connection
func Open(cfg config.DatabaseConfig, log *logrus.Logger) (*GormDB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "mysql":
		dialector = mysql.Open(cfg.MySQL.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.Postgres.DSN())
	case "sqlite", "":
		dialector = sqlite.Open(cfg.SQLite.Path + "?_foreign_keys=on")
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	if cfg.Type == "sqlite" || cfg.Type == "" {
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	log.WithField("component", "database").Infof("connected to %s", dialector.Name())
	return NewGormDBFromDB(db), nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Resort{},
		&models.Conditions{},
		&models.Pricing{},
		&models.Forecast{},
		&models.ConditionsSnapshot{},
		&models.ScrapeRun{},
	)
}
