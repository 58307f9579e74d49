package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/shepherd/internal/control"
	"github.com/vietddude/shepherd/internal/core/config"
)

func TestGracefulShutdown(t *testing.T) {
	// Ephemeral config with no real work to do but enough to start components
	cfg := control.Config{
		Port:      0,
		Ephemeral: true,
		Probe: config.ProbeConfig{
			Interval:       100 * time.Millisecond,
			Timeout:        time.Second,
			CrashThreshold: 3,
		},
		Deployments: []config.DeploymentConfig{
			{Service: "noop", Image: "noop:latest", Environment: "test"},
		},
	}

	supervisor, err := control.NewSupervisor(cfg)
	if err != nil {
		t.Fatalf("Failed to create supervisor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := supervisor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let it run for a bit
	time.Sleep(500 * time.Millisecond)

	// Trigger shutdown
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	if err := supervisor.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
