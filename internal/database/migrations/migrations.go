package migrations

import (
	"errors"
	"fmt"
	"os"

	"ms-ordering/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"
)

type MigrateOptions struct {
	// MigrationsDir holds the NNNN_name.up.sql / .down.sql files.
	MigrationsDir string
	// ForceDirty clears a dirty version left by a failed run before migrating.
	ForceDirty bool
}

func DefaultOptions() MigrateOptions {
	return MigrateOptions{MigrationsDir: "./migrations"}
}

// Runner applies the PostgreSQL schema with golang-migrate.
type Runner struct {
	bunDB    *bun.DB
	options  MigrateOptions
	migrator *migrate.Migrate
	logger   *logger.Logger
}

func NewRunner(bunDB *bun.DB, opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{
		bunDB:   bunDB,
		options: opts,
		logger:  log,
	}
}

func (r *Runner) Initialize() error {
	driver, err := postgres.WithInstance(r.bunDB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	if _, err := os.Stat(r.options.MigrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", r.options.MigrationsDir)
	}

	migrator, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.options.MigrationsDir),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

func (r *Runner) ensure() error {
	if r.migrator != nil {
		return nil
	}
	return r.Initialize()
}

// MigrateUp runs all pending migrations.
func (r *Runner) MigrateUp() error {
	if err := r.ensure(); err != nil {
		return err
	}

	if r.options.ForceDirty {
		version, dirty, err := r.migrator.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		if dirty {
			r.logger.Warn("MIGRATE", fmt.Sprintf("Dirty migration at version %d, forcing", version))
			if err := r.migrator.Force(int(version)); err != nil {
				return fmt.Errorf("failed to fix dirty migration: %w", err)
			}
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, _, err := r.migrator.Version()
	if err == nil {
		r.logger.Info("MIGRATE", fmt.Sprintf("Current schema version: %d", version))
	} else if !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	return nil
}

// MigrateDown rolls back all migrations.
func (r *Runner) MigrateDown() error {
	if err := r.ensure(); err != nil {
		return err
	}

	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateTo moves the schema up or down to version.
func (r *Runner) MigrateTo(version uint) error {
	if err := r.ensure(); err != nil {
		return err
	}

	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

func (r *Runner) Version() (uint, bool, error) {
	if err := r.ensure(); err != nil {
		return 0, false, err
	}

	version, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (r *Runner) Close() error {
	if r.migrator != nil {
		sourceErr, databaseErr := r.migrator.Close()
		if sourceErr != nil {
			return fmt.Errorf("error closing migrator source: %w", sourceErr)
		}
		if databaseErr != nil {
			return fmt.Errorf("error closing migrator database: %w", databaseErr)
		}
	}
	return nil
}
