package commands

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskflow/internal/config"
	pkgconfig "taskflow/pkg/config"
	"taskflow/pkg/db"
	"taskflow/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	configEnv string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:           "taskflow",
	Short:         "Per-assignee task progress tracking and analytics",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version information
func SetVersion(v, c string) {
	version = v
	commit = c
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

// Execute runs the root command. Cancelling ctx starts a graceful shutdown.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", pkgconfig.GetConfigEnv(), "config environment (CONFIG_ENV)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", pkgconfig.GetConfigDir(), "config directory (CONFIG_DIR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(outboxCmd)
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configEnv, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(cfg.Log.Level)
	log.Info("Configuration loaded",
		zap.String("env", configEnv),
		zap.String("version", version),
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
	)
	return cfg, log, nil
}

func openDB(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	log.Info("Initializing database connection...")
	pool, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	log.Info("Database connection established successfully")
	return pool, nil
}
