package db

import (
	"database/sql"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DatabaseConnection struct {
	db    *gorm.DB
	sqlDb *sql.DB
}

// PoolOptions tunes the underlying sql.DB pool.
type PoolOptions struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// dialectorFor picks the driver from the DSN. postgres:// and key=value
// DSNs go to postgres; sqlite:// prefixes and plain paths go to sqlite.
func dialectorFor(dsn string) (gorm.Dialector, string, error) {
	switch {
	case dsn == "":
		return nil, "", fmt.Errorf("empty database dsn")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), "postgres", nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), "sqlite", nil
	}
	return sqlite.Open(dsn), "sqlite", nil
}

// Open connects to the database behind dsn and migrates the result tables.
func Open(dsn string, opts PoolOptions) (*DatabaseConnection, error) {
	dialector, kind, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	newLogger := logger.New(
		stdlog.New(os.Stderr, "\r\n", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", kind, err)
	}
	if err := db.AutoMigrate(&Run{}, &ScenarioResult{}, &FailureRecord{}); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying database connection: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	log.Debug().Str("driver", kind).Msg("Connected to results database")

	return &DatabaseConnection{
		db:    db,
		sqlDb: sqlDB,
	}, nil
}

func (d *DatabaseConnection) Close() error {
	return d.sqlDb.Close()
}
