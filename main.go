package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/core/lifecycle"
	"github.com/vietddude/shepherd/internal/healing"
)

// Manual smoke harness for the two cores: walks a machine through a full
// deploy-crash-rollback cycle and runs a flaky operation through the
// healing loop. The real entrypoint is cmd/shepherd.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	ctx := context.Background()

	// 1. Walk a machine through the lifecycle
	machine := lifecycle.NewMachine("smoke-test")
	machine.SetTransitionCallback(func(id string, rec domain.TransitionRecord) {
		fmt.Printf("  %s: %s -> %s (%s)\n", id, rec.From, rec.To, rec.Reason)
	})

	fmt.Println("=== Lifecycle walk ===")
	steps := []struct {
		to     domain.DeploymentStatus
		reason string
	}{
		{domain.StatusBuilding, "build started"},
		{domain.StatusDeploying, "build succeeded"},
		{domain.StatusActive, "deploy succeeded"},
		{domain.StatusCrashed, "probe failures"},
		{domain.StatusRollingBack, "auto"},
		{domain.StatusRolledBack, "rollback complete"},
	}
	for _, step := range steps {
		if _, err := machine.Transition(step.to, step.reason, nil); err != nil {
			log.Fatalf("transition to %s failed: %v", step.to, err)
		}
	}

	// Terminal status rejects everything
	if _, err := machine.Transition(domain.StatusActive, "should fail", nil); err != nil {
		fmt.Printf("  rejected as expected: %v\n", err)
	}
	fmt.Printf("  history: %d transitions\n\n", len(machine.HistorySnapshot()))

	// 2. Heal a flaky operation
	fmt.Println("=== Healing loop ===")
	loop, err := healing.New(healing.Config{
		MaxRetries: 5,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	})
	if err != nil {
		log.Fatalf("healing loop: %v", err)
	}

	calls := 0
	result, err := loop.SelfHeal(ctx, "flaky-op", 0, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})
	if err != nil {
		log.Fatalf("self heal: %v", err)
	}

	for _, a := range result.Attempts {
		if a.Err == "" {
			fmt.Printf("  attempt %d: ok\n", a.Number)
			continue
		}
		fmt.Printf("  attempt %d: %s -> %s, waited %s\n", a.Number, a.ErrorType, a.Strategy, a.Wait)
	}
	fmt.Printf("  succeeded=%v in %s\n\n", result.Succeeded, result.TotalDuration.Round(time.Millisecond))

	// 3. Optionally heal a shell command: SMOKE_CMD="curl -sf http://localhost:8080/health"
	if cmd := os.Getenv("SMOKE_CMD"); cmd != "" {
		fmt.Println("=== Shell healing ===")
		result, err := loop.SelfHealShell(ctx, []string{"sh", "-c", cmd}, 3)
		if err != nil {
			log.Fatalf("shell heal: %v", err)
		}
		fmt.Printf("  %q succeeded=%v after %d attempts\n", cmd, result.Succeeded, len(result.Attempts))
	}
}
