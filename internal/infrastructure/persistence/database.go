package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meterly/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteMemoryDSN = "file::memory:?cache=shared"

// Database owns the gorm handle shared by every repository
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the configured driver without query logging
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return NewDatabaseWithLogger(cfg, logger.Default.LogMode(logger.Silent))
}

// NewDatabaseWithLogger opens the configured driver, sizes the pool and
// checks the connection. Prepared statements are only cached on postgres.
func NewDatabaseWithLogger(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	isSQLite := cfg.Driver == "sqlite"
	db, err := gorm.Open(dialector(cfg), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            !isSQLite,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	d := &Database{DB: db}
	pool, err := d.SQL()
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// Writers are serialized anyway and a single connection keeps the
		// in-memory database alive between calls
		pool.SetMaxOpenConns(1)
	} else {
		configurePool(pool, cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return d, nil
}

func configurePool(pool *sql.DB, cfg *config.DatabaseConfig) {
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

func dialector(cfg *config.DatabaseConfig) gorm.Dialector {
	if cfg.Driver != "sqlite" {
		return postgres.Open(cfg.DSN())
	}
	if cfg.SQLitePath == "" {
		return sqlite.Open(sqliteMemoryDSN)
	}
	return sqlite.Open(cfg.SQLitePath)
}

// SQL returns the underlying pool
func (d *Database) SQL() (*sql.DB, error) {
	pool, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	return pool, nil
}

func (d *Database) Close() error {
	pool, err := d.SQL()
	if err != nil {
		return err
	}
	return pool.Close()
}

// Ping is the readiness check used by /health
func (d *Database) Ping(ctx context.Context) error {
	pool, err := d.SQL()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// Stats reports the pool counters
func (d *Database) Stats() (sql.DBStats, error) {
	pool, err := d.SQL()
	if err != nil {
		return sql.DBStats{}, err
	}
	return pool.Stats(), nil
}
