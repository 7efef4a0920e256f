// Package db opens the database, applies the schema and seeds reference data.
package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/diewo77/go-esign/internal/config"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var log = logging.GetLogger("db")

var passwordRegex = regexp.MustCompile(`(password=)(\S+)`)

// MaskDSN hides the password of a key=value DSN.
func MaskDSN(dsn string) string {
	return passwordRegex.ReplaceAllString(dsn, `${1}***`)
}

// Connect opens the configured database, retrying while postgres starts.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	var dialector gorm.Dialector
	var target string
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
		target = cfg.Path
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
		target = MaskDSN(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	var (
		gdb *gorm.DB
		err error
	)
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(dialector, gcfg)
		if err == nil {
			break
		}
		log.Warn("database connection failed, retrying", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "connect database after retries")
	}
	if err := Ping(ctx, gdb); err != nil {
		return nil, err
	}
	log.Info("database connected", "driver", cfg.Driver, "target", target)
	return gdb, nil
}

// Ping checks the connection with a trivial query.
// Close releases the connection pool behind gdb.
func Close(gdb *gorm.DB) {
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Warn("database handle unavailable", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database failed", "error", err)
	}
}

func Ping(ctx context.Context, gdb *gorm.DB) error {
	if err := gdb.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return errors.Wrap(err, "db ping")
	}
	return nil
}
