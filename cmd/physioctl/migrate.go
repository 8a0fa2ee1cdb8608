package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jwalitptl/physiocapture-api/internal/config"
	"github.com/jwalitptl/physiocapture-api/internal/repository/postgres"
)

func migrateCmd(log *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("dir", "", "migrations directory (defaults to migrations.dir)")

	run := func(direction postgres.MigrationDirection) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.Migrations.Dir
			}

			version, err := postgres.Migrate(cfg.Database.URL(), dir, direction)
			if err != nil {
				return err
			}
			log.Info("migrations applied",
				zap.String("direction", string(direction)),
				zap.String("dir", dir),
				zap.Uint("version", version))
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply pending migrations", RunE: run(postgres.MigrateUp)},
		&cobra.Command{Use: "down", Short: "Roll back the last migration", RunE: run(postgres.MigrateDown)},
	)
	return cmd
}
