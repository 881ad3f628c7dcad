package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chat-server/internal/config"
	"chat-server/internal/db"
	"chat-server/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log.Level, cfg.Server.Environment)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		database, err := db.Connect(cmd.Context(), cfg.Database.DSN, 1)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(cmd.Context(), database, logger); err != nil {
			return err
		}
		logger.Info("migrations applied", zap.String("dsn_host", dsnHost(cfg.Database.DSN)))
		return nil
	},
}
