package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/shepherd/internal/control"
	"github.com/vietddude/shepherd/internal/core/config"
	"github.com/vietddude/stylelog"
)

var (
	cfgPath   string
	isDebug   bool
	ephemeral bool
)

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Shepherd deployment supervisor",
	Long:  `Shepherd supervises service deployments through their lifecycle, retrying failed operations and rolling back crashed releases.`,
	Run:   runShepherd,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "use in-memory storage even when a database is configured")
}

func runShepherd(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	// Transform config
	controlCfg := control.Config{
		Port:        cfg.Server.Port,
		Ephemeral:   ephemeral,
		Deployments: cfg.Deployments,
		Healing:     cfg.Healing,
		Probe:       cfg.Probe,
		Retention:   cfg.Retention,
		Redis:       cfg.Redis,
		Database:    cfg.Database,
	}

	// Initialize Supervisor
	app, err := control.NewSupervisor(controlCfg)
	if err != nil {
		slog.Error("Failed to initialize Supervisor", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Supervisor", "error", err)
		os.Exit(1)
	}

	slog.Info("Supervisor started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
