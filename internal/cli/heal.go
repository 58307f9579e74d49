package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/shepherd/internal/healing"
	"github.com/vietddude/stylelog"
)

var healRetries int

var healCmd = &cobra.Command{
	Use:   "heal -- COMMAND [ARGS...]",
	Short: "Run a command with self-healing retries",
	Long:  `Runs a command through the healing loop: failures are classified, retried per strategy, and the attempt history is printed when the command gives up.`,
	Args:  cobra.MinimumNArgs(1),
	Run:   runHeal,
}

func init() {
	healCmd.Flags().IntVar(&healRetries, "retries", 0, "max attempts (0 uses the default)")
	rootCmd.AddCommand(healCmd)
}

func runHeal(cmd *cobra.Command, args []string) {
	stylelog.InitDefault(&tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
	})

	loop, err := healing.New(healing.DefaultConfig)
	if err != nil {
		slog.Error("Failed to init healing loop", "error", err)
		os.Exit(1)
	}

	result, err := loop.SelfHealShell(context.Background(), args, healRetries)
	if err != nil {
		slog.Error("Failed to run command", "error", err)
		os.Exit(1)
	}

	printAttempts(result)

	if result.Succeeded {
		slog.Info("Command succeeded", "attempts", len(result.Attempts), "duration", result.TotalDuration)
		return
	}
	slog.Error("Command gave up", "attempts", len(result.Attempts), "error", result.FinalError)
	os.Exit(1)
}

func printAttempts(result healing.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ATTEMPT\tERROR TYPE\tSTRATEGY\tWAIT\tERROR")

	for _, a := range result.Attempts {
		errText := a.Err
		if errText == "" {
			errText = "-"
		}
		if len(errText) > 60 {
			errText = errText[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			a.Number, a.ErrorType, a.Strategy, a.Wait.Round(time.Millisecond), errText)
	}
	_ = w.Flush()
}
