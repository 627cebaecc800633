package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/database/postgres"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
)

// migrator is the schema management surface of postgres.Connection.
type migrator interface {
	RunMigrations() error
	RollbackMigration(steps int) error
	MigrationStatus() (version uint, dirty bool, err error)
	ForceMigrationVersion(version int) error
	Close() error
}

// openMigrator is replaced in tests.
var openMigrator = func(ctx context.Context, cfg config.PostgresConfig, logger logging.Logger) (migrator, error) {
	return postgres.NewConnection(ctx, cfg, logger)
}

// NewMigrateCmd manages the PostgreSQL sink schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL sink schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := m.RollbackMigration(steps); err != nil {
				return err
			}
			return PrintResult(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
				if err := m.RunMigrations(); err != nil {
					return err
				}
				return printStatus(cmd, m)
			}),
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
				return printStatus(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Record VERSION as applied without running it",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				if err := m.ForceMigrationVersion(v); err != nil {
					return err
				}
				return printStatus(cmd, m)
			}),
		},
	)
	return cmd
}

func withMigrator(run func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cliCtx, err := GetCLIContext(cmd)
		if err != nil {
			return err
		}
		m, err := openMigrator(cmd.Context(), cliCtx.Config.Postgres, cliCtx.Logger)
		if err != nil {
			return err
		}
		defer m.Close()
		return run(cmd, m, args)
	}
}

type schemaStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s schemaStatus) String() string {
	return fmt.Sprintf("version=%d dirty=%t\n", s.Version, s.Dirty)
}

func printStatus(cmd *cobra.Command, m migrator) error {
	v, dirty, err := m.MigrationStatus()
	if err != nil {
		return err
	}
	return PrintResult(cmd, schemaStatus{Version: v, Dirty: dirty})
}

//Personal.AI order the ending
