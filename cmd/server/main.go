package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"posbackoffice/backend/internal/config"
	"posbackoffice/backend/internal/logger"
)

var (
	cfg config.Config
	lg  zerolog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "posbackoffice",
		Short:         "Retail POS back office API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg = config.Load()
			lg = logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd)
		},
	}

	root.AddCommand(serveCmd(), migrateCmd(), checkConfigCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the report refresher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd)
		},
	}
}

func serve(cmd *cobra.Command) error {
	if err := validateSecurityConfig(cfg); err != nil {
		lg.Error().Err(err).Msg("invalid security configuration")
		return err
	}
	if err := runServer(cmd.Context(), cfg, lg); err != nil {
		lg.Error().Err(err).Msg("server stopped with error")
		return err
	}
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema to DATABASE_URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			if err := migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
				lg.Error().Err(err).Msg("migration failed")
				return err
			}
			lg.Info().Msg("schema applied")
			return nil
		},
	}
}

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load the configuration and validate secrets without starting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateSecurityConfig(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "env=%s port=%s store=%s\n", cfg.Env, cfg.Port, cfg.StoreID)
			fmt.Fprintf(out, "repository=%s cache=%s\n", repositoryKind(cfg), cacheKind(cfg))
			fmt.Fprintf(out, "report refresh=%s cache ttl=%s\n", cfg.ReportRefreshInterval(), cfg.ReportCacheTTL())
			return nil
		},
	}
}

func repositoryKind(c config.Config) string {
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}

func cacheKind(c config.Config) string {
	if c.RedisAddr != "" {
		return "redis"
	}
	return "memory"
}
