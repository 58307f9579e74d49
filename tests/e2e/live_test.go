package e2e

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/vietddude/shepherd/internal/control"
	"github.com/vietddude/shepherd/internal/core/config"
	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/healing"
	"github.com/vietddude/shepherd/internal/infra/storage/postgres"
)

// setupLiveDB connects to the database named by SHEPHERD_E2E_DB_URL,
// runs migrations and truncates the tables so each run starts clean.
func setupLiveDB(t *testing.T, dbURL string) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("Failed to set goose dialect: %v", err)
	}
	// Path to migrations from tests/e2e directory
	if err := goose.Up(db, "../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	if _, err := db.Exec("TRUNCATE deployment_transitions, deployments"); err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return db
}

func TestPostgresPersistence_Live(t *testing.T) {
	dbURL := os.Getenv("SHEPHERD_E2E_DB_URL")
	if dbURL == "" {
		t.Skip("Skipping live E2E test. Set SHEPHERD_E2E_DB_URL to run.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	testDB := setupLiveDB(t, dbURL)
	defer testDB.Close()

	cfg := control.Config{
		Port:     0,
		Database: postgres.Config{URL: dbURL},
		Healing: config.HealingConfig{
			MaxRetries: 2,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   50 * time.Millisecond,
		},
		Probe: config.ProbeConfig{Timeout: time.Second, CrashThreshold: 3},
	}

	supervisor, err := control.NewSupervisor(cfg)
	if err != nil {
		t.Fatalf("Failed to create supervisor: %v", err)
	}
	defer func() {
		_ = supervisor.Stop(context.Background())
	}()

	d, err := supervisor.Create(ctx, config.DeploymentConfig{
		Service:     "live-test",
		Image:       "live-test:v1",
		Environment: "e2e",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ops := control.PipelineOps{
		Build:  healing.Operation{Name: "build live-test", Run: func(ctx context.Context) error { return nil }},
		Deploy: healing.Operation{Name: "deploy live-test", Run: func(ctx context.Context) error { return nil }},
	}
	if err := supervisor.RunPipeline(ctx, d.ID, ops); err != nil {
		t.Fatalf("RunPipeline failed: %v", err)
	}

	// Status column must reflect the final state
	var status string
	err = testDB.QueryRow("SELECT status FROM deployments WHERE id = $1", d.ID).Scan(&status)
	if err != nil {
		t.Fatalf("Failed to query deployment: %v", err)
	}
	if status != string(domain.StatusActive) {
		t.Errorf("stored status = %s, want %s", status, domain.StatusActive)
	}

	// Every transition must be in the audit log
	var count int
	err = testDB.QueryRow("SELECT COUNT(*) FROM deployment_transitions WHERE deployment_id = $1", d.ID).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query transitions: %v", err)
	}
	if count != 3 {
		t.Errorf("transition count = %d, want 3", count)
	}

	// The audit log and status column move together: the last logged
	// to_status must match the stored status.
	var lastTo string
	err = testDB.QueryRow(
		"SELECT to_status FROM deployment_transitions WHERE deployment_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT 1",
		d.ID).Scan(&lastTo)
	if err != nil {
		t.Fatalf("Failed to query last transition: %v", err)
	}
	if lastTo != status {
		t.Errorf("last to_status = %s diverges from stored status %s", lastTo, status)
	}
}
