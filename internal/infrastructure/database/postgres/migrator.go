package postgres

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/keyip-combinator/pkg/errors"
)

const (
	migrationsTable      = "combinator_schema_migrations"
	migrationLockTimeout = 30 * time.Second
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrateLogger routes golang-migrate's progress lines through the service
// logger at DEBUG.
type migrateLogger struct {
	logger logging.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), logging.String(logging.FieldComponent, "migrate"))
}

func (l migrateLogger) Verbose() bool { return false }

// withMigrator runs fn against a migrate instance over the embedded files.
// Closing the instance releases one pooled connection, not the pool.
func (c *Connection) withMigrator(fn func(m *migrate.Migrate) error) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to open embedded migrations")
	}
	driver, err := pgmigrate.WithInstance(c.db, &pgmigrate.Config{
		MigrationsTable:  migrationsTable,
		StatementTimeout: orDefault(c.cfg.StatementTimeout, defaultStatementTimeout),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	m.Log = migrateLogger{logger: c.logger}
	m.LockTimeout = migrationLockTimeout
	return fn(m)
}

// RunMigrations applies every pending migration.  No pending migration is
// not an error.
func (c *Connection) RunMigrations() error {
	return c.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			version, _, _ := m.Version()
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError,
				fmt.Sprintf("failed to run migrations (current version: %d)", version))
		}
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			c.logger.Warn("Failed to get migration version", logging.Err(err))
		}
		c.logger.Info("Database migrations completed",
			logging.Int64("version", int64(version)),
			logging.Bool("dirty", dirty),
		)
		return nil
	})
}

// RollbackMigration reverts the last steps migrations.
func (c *Connection) RollbackMigration(steps int) error {
	if steps <= 0 {
		return apperrors.InvalidParam(fmt.Sprintf("steps must be greater than 0, got %d", steps))
	}
	return c.withMigrator(func(m *migrate.Migrate) error {
		err := m.Steps(-steps)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, migrate.ErrNoChange):
			return apperrors.New(apperrors.ErrCodeConflict, "no migrations to roll back")
		default:
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, fmt.Sprintf("failed to rollback %d step(s)", steps))
		}
	})
}

// MigrationStatus reports the applied version and whether a previous
// migration left the schema dirty.  An empty database reports version 0.
func (c *Connection) MigrationStatus() (version uint, dirty bool, err error) {
	err = c.withMigrator(func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		if verr != nil {
			return apperrors.Wrap(verr, apperrors.ErrCodeDatabaseError, "failed to get migration version")
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

// ForceMigrationVersion sets the recorded version without running anything.
// It is the recovery path for a dirty schema.
func (c *Connection) ForceMigrationVersion(version int) error {
	return c.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Force(version); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, fmt.Sprintf("failed to force version %d", version))
		}
		c.logger.Warn("Migration version forced", logging.Int("version", version))
		return nil
	})
}

//Personal.AI order the ending
