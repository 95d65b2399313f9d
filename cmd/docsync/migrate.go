package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chronicle/docsync/internal/config"
	"chronicle/docsync/internal/store"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Manage the database schema. Without a subcommand, pending migrations are applied.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrateUp(config.FromViper(v))
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrateUp(config.FromViper(v))
		},
	})
	cmd.AddCommand(newMigrateDownCmd(v))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := openMigrator(config.FromViper(v))
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d dirty=%t\n", version, dirty)
			return err
		},
	})
	return cmd
}

func newMigrateDownCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss.

Examples:
  # Revert the latest migration
  docsync migrate down --steps 1 --yes

  # Revert every migration (drops all documents and published nodes)
  docsync migrate down --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := cmd.Flags().GetUint("steps")
			if err != nil {
				return fmt.Errorf("failed to get steps flag: %w", err)
			}
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return fmt.Errorf("failed to get yes flag: %w", err)
			}
			if !yes {
				return fmt.Errorf("refusing to revert migrations without --yes")
			}

			cfg := config.FromViper(v)
			m, err := openMigrator(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			if steps == 0 {
				slog.Warn("Reverting all migrations", "driver", cfg.DatabaseDriver)
			} else {
				slog.Info("Reverting migrations", "driver", cfg.DatabaseDriver, "steps", steps)
			}
			if err := m.Down(steps); err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if dirty {
				slog.Warn("Schema is dirty, manual intervention may be required", "version", version)
			} else {
				slog.Info("Migrations reverted", "version", version)
			}
			return nil
		},
	}
	cmd.Flags().UintP("steps", "n", 0, "Number of migrations to revert (0 = all)")
	cmd.Flags().BoolP("yes", "y", false, "Confirm reverting migrations")
	return cmd
}

func runMigrateUp(cfg config.Config) error {
	m, err := openMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	slog.Info("Migrations applied", "driver", cfg.DatabaseDriver, "version", version)
	return nil
}

func openMigrator(cfg config.Config) (*store.Migrator, error) {
	driver, err := store.NormalizeDriver(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	if driver == store.DriverSQLite {
		if err := ensureDatabaseDir(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	return store.NewMigrator(driver, cfg.DatabaseURL)
}
