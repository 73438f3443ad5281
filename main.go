package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"noteflow/config"
	"noteflow/store"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "noteflow",
		Short:         "noteflow - note marketplace backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(purgeCommentsCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Server.Development() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

// setup loads the config, installs the default logger and opens the database.
func setup(configPath string) (*config.Config, *slog.Logger, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, st, nil
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, st, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("database migrated")
			return nil
		},
	}
}

func purgeCommentsCmd(configPath *string) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "purge-comments",
		Short: "Permanently remove comments soft deleted before the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, st, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if retention <= 0 {
				retention = cfg.Comments.Retention
			}
			cutoff := time.Now().Add(-retention)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			n, err := st.Comments.PurgeDeleted(ctx, cutoff)
			if err != nil {
				return err
			}
			log.Info("purged deleted comments", "count", n, "before", cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "override comments.retention")
	return cmd
}
