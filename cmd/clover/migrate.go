package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/db/migrations"
	"github.com/Ramsey-B/clover/pkg/database"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var (
		target uint
		force  int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply snapshot store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == "file" {
				fmt.Fprintln(cmd.OutOrStdout(), "file store has no schema; nothing to migrate")
				return nil
			}

			logger, syncLogger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = syncLogger() }()

			dsn := cfg.DatabaseDSN
			if cfg.StoreDriver == database.DriverSQLite {
				if dsn, err = sqlitePath(cfg); err != nil {
					return err
				}
			}

			svc := database.NewMigrationService(logger, &database.MigrationConfig{
				Migrations:          migrations.FS,
				MigrationFolderPath: cfg.DatabaseMigrationPath,
				Version:             target,
				Force:               force,
				AutoRollback:        true,
			})
			if err := svc.Migrate(cfg.StoreDriver, dsn); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", cfg.StoreDriver)
			return nil
		},
	}
	cmd.Flags().UintVar(&target, "version", 0, "Migrate to this version instead of the latest")
	cmd.Flags().IntVar(&force, "force", 0, "Force the recorded version before migrating (clears a dirty state)")
	return cmd
}
