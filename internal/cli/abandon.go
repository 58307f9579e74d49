package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/shepherd/internal/core/config"
	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/infra/storage/postgres"
)

var abandonCmd = &cobra.Command{
	Use:   "abandon [deployment_id]",
	Short: "Force-mark a stuck deployment as failed",
	Args:  cobra.ExactArgs(1),
	Run:   runAbandon,
}

func init() {
	rootCmd.AddCommand(abandonCmd)
}

func runAbandon(cmd *cobra.Command, args []string) {
	id := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	// Direct SQL override for stuck rows; the running supervisor's machine
	// is not touched, so only use this when no supervisor holds the
	// deployment.
	var from string
	err = db.QueryRowContext(ctx, "SELECT status FROM deployments WHERE id = $1", id).Scan(&from)
	if err != nil {
		slog.Error("Failed to look up deployment", "error", err)
		os.Exit(1)
	}

	_, err = db.ExecContext(ctx, "UPDATE deployments SET status = $1, updated_at = now() WHERE id = $2",
		string(domain.StatusFailed), id)
	if err != nil {
		slog.Error("Failed to abandon deployment", "error", err)
		os.Exit(1)
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO deployment_transitions (deployment_id, from_status, to_status, reason, recorded_at) VALUES ($1, $2, $3, $4, now())",
		id, from, string(domain.StatusFailed), "abandoned by operator")
	if err != nil {
		slog.Error("Failed to record transition", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully abandoned deployment %s (was %s)\n", id, from)
}
