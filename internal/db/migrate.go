package db

import (
	"fmt"

	"github.com/diewo77/go-esign/internal/config"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/golang-migrate/migrate/v4"
	// postgres driver and file source for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// requiredTables must exist once the schema is applied.
var requiredTables = []string{"users", "profiles", "partners", "signature_templates", "sale_orders", "signature_histories", "settings"}

// Migrate applies the schema. With app.migrations set on postgres the SQL
// files of app.migrations_dir are run; otherwise gorm AutoMigrate is used.
func Migrate(gdb *gorm.DB, cfg *config.Config) error {
	if cfg.App.Migrations && cfg.Database.Driver == "postgres" {
		if err := runSQLMigrations(cfg.App.MigrationsDir, cfg.Database.URL()); err != nil {
			return errors.Wrap(err, "sql migrations")
		}
	} else {
		for _, m := range models.All() {
			if err := gdb.AutoMigrate(m); err != nil {
				return errors.Wrapf(err, "automigrate %T", m)
			}
		}
	}
	for _, table := range requiredTables {
		if !gdb.Migrator().HasTable(table) {
			return fmt.Errorf("missing table after migration: %s", table)
		}
	}
	return nil
}

func runSQLMigrations(dir, url string) error {
	m, err := migrate.New("file://"+dir, url)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, _ := m.Version()
	log.Info("sql migrations applied", "version", version, "dirty", dirty)
	return nil
}
