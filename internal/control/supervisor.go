package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/shepherd/internal/core/config"
	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/core/lifecycle"
	"github.com/vietddude/shepherd/internal/core/worker"
	"github.com/vietddude/shepherd/internal/healing"
	redisclient "github.com/vietddude/shepherd/internal/infra/redis"
	"github.com/vietddude/shepherd/internal/infra/remote"
	"github.com/vietddude/shepherd/internal/infra/storage"
	"github.com/vietddude/shepherd/internal/infra/storage/memory"
	"github.com/vietddude/shepherd/internal/infra/storage/postgres"
	"github.com/vietddude/shepherd/internal/ops/health"
	"github.com/vietddude/shepherd/internal/ops/metrics"
)

// tracked bundles everything the supervisor holds per deployment. Its
// mutex serializes pipeline and rollback work, so only one writer drives
// a deployment's machine at a time.
type tracked struct {
	mu         sync.Mutex
	deployment *domain.Deployment
	cfg        config.DeploymentConfig
	machine    *lifecycle.Machine
	monitor    *remote.TargetMonitor
	prober     remote.Prober
	rollback   healing.Operation
}

// Supervisor is the external caller of the two cores: it drives state
// machines through pipeline transitions, runs every remote action
// through the healing loop, probes active deployments and escalates
// failures the loop gave up on.
type Supervisor struct {
	cfg          Config
	deployments  storage.DeploymentRepository
	transitions  storage.TransitionLogRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	queue        *redisclient.EscalationQueue
	loop         *healing.Loop
	recorder     *Recorder
	collector    *lifecycle.MetricsCollector
	healthMon    *health.Monitor
	healthServer *health.Server
	pruner       *worker.Pruner
	log          *slog.Logger

	mu       sync.RWMutex
	registry map[string]*tracked
}

// NewSupervisor creates a supervisor with all dependencies initialized.
func NewSupervisor(cfg Config) (*Supervisor, error) {

	// 1. Initialize Storage
	var deployments storage.DeploymentRepository
	var transitions storage.TransitionLogRepository
	var db *postgres.DB

	if cfg.Database.URL != "" && !cfg.Ephemeral {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		deployments = postgres.NewDeploymentRepo(db)
		transitions = postgres.NewTransitionRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		deployments = memory.NewDeploymentRepo(store)
		transitions = memory.NewTransitionRepo(store)
		slog.Info("Using memory storage")
	}

	// 2. Initialize Redis (optional)
	var redisClient *redisclient.Client
	var queue *redisclient.EscalationQueue
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, escalation queue disabled", "error", err)
		} else {
			queue = redisclient.NewEscalationQueue(redisClient)
		}
	}

	// 3. Healing loop and transition fanout
	loop, err := healing.New(cfg.Healing.LoopConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to init healing loop: %w", err)
	}

	collector := lifecycle.NewMetricsCollector(50)
	recorder := NewRecorder(db, deployments, transitions, collector)

	var pruner *worker.Pruner
	if cfg.Retention.TransitionTTL > 0 {
		pruner = worker.NewPruner(cfg.Retention.TransitionTTL, cfg.Retention.Interval, transitions)
	}

	s := &Supervisor{
		cfg:         cfg,
		deployments: deployments,
		transitions: transitions,
		db:          db,
		redisClient: redisClient,
		queue:       queue,
		loop:        loop,
		recorder:    recorder,
		collector:   collector,
		pruner:      pruner,
		log:         slog.Default(),
		registry:    make(map[string]*tracked),
	}

	// 4. Health monitor and server. Nil backends stay nil interfaces.
	var dbPinger, queuePinger health.Pinger
	var escalations health.EscalationCounter
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		queuePinger = redisClient
	}
	if queue != nil {
		escalations = queue
	}
	s.healthMon = health.NewMonitor(dbPinger, queuePinger, escalations, s)
	s.healthServer = health.NewServer(s.healthMon, cfg.Port)

	return s, nil
}

// Create registers a new deployment: persists the pending record, builds
// its state machine and, when a probe target is configured, its prober.
func (s *Supervisor) Create(ctx context.Context, dcfg config.DeploymentConfig) (*domain.Deployment, error) {
	d := &domain.Deployment{
		ID:          uuid.NewString(),
		Service:     dcfg.Service,
		Image:       dcfg.Image,
		Environment: dcfg.Environment,
		Status:      domain.StatusPending,
	}
	if err := s.deployments.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save deployment: %w", err)
	}

	machine := lifecycle.NewMachine(d.ID)
	machine.SetTransitionCallback(s.recorder.Callback(d.Service))

	t := &tracked{
		deployment: d,
		cfg:        dcfg,
		machine:    machine,
		monitor:    remote.NewTargetMonitor(s.cfg.Probe.CrashThreshold),
	}

	if dcfg.Probe.Endpoint != "" {
		target := dcfg.Probe.Target(dcfg.Service, d.ID)
		switch target.Kind {
		case domain.TargetGRPC:
			probe, err := remote.NewGRPCProbe(ctx, target, s.cfg.Probe.Timeout)
			if err != nil {
				s.log.Warn("failed to dial probe target, probing disabled",
					"service", dcfg.Service, "error", err)
			} else {
				t.prober = probe
			}
		default:
			t.prober = remote.NewHTTPProbe(target, s.cfg.Probe.Timeout)
		}
	}

	s.mu.Lock()
	s.registry[d.ID] = t
	s.mu.Unlock()

	metrics.DeploymentStatus.WithLabelValues(d.Service, string(domain.StatusPending)).Set(1)
	s.log.Info("deployment registered", "service", d.Service, "deployment", d.ID)
	return d, nil
}

// RunPipeline drives a deployment from pending to active, running each
// stage's remote action through the healing loop. A stage the loop gives
// up on moves the deployment to failed, queues an escalation and, when
// auto-rollback is enabled, starts a rollback.
func (s *Supervisor) RunPipeline(ctx context.Context, id string, ops PipelineOps) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollback = ops.Rollback

	stages := []struct {
		to     domain.DeploymentStatus
		reason string
		op     healing.Operation
	}{
		{domain.StatusBuilding, "build started", ops.Build},
		{domain.StatusDeploying, "build succeeded", ops.Deploy},
		{domain.StatusActive, "deploy succeeded", healing.Operation{}},
	}

	for _, stage := range stages {
		if _, err := t.machine.Transition(stage.to, stage.reason, nil); err != nil {
			metrics.InvalidTransitionsTotal.WithLabelValues(t.deployment.Service).Inc()
			return err
		}
		if stage.op.Run == nil {
			continue
		}

		result, err := s.executeStage(ctx, t, stage.op)
		if err != nil {
			return err
		}
		if result.Cancelled {
			return result.FinalError
		}
		if result.Succeeded {
			continue
		}

		last := result.LastAttempt()
		if _, terr := t.machine.Transition(domain.StatusFailed, last.ErrorType.String(), map[string]string{
			"operation": result.OperationName,
			"attempts":  strconv.Itoa(len(result.Attempts)),
		}); terr != nil {
			s.log.Error("failed to record failure transition", "deployment", id, "error", terr)
		}
		s.escalate(ctx, t, result)

		if s.cfg.Probe.AutoRollback && ops.Rollback.Run != nil {
			if rerr := s.rollbackLocked(ctx, t, ops.Rollback, "auto"); rerr != nil {
				s.log.Error("auto-rollback failed", "service", t.deployment.Service, "error", rerr)
			}
		}
		return fmt.Errorf("pipeline for %s: %s failed after %d attempts: %w",
			t.deployment.Service, result.OperationName, len(result.Attempts), result.FinalError)
	}

	s.log.Info("deployment active", "service", t.deployment.Service, "deployment", id)
	return nil
}

// Rollback rolls a failed or crashed deployment back using the rollback
// operation registered by its last pipeline run.
func (s *Supervisor) Rollback(ctx context.Context, id, reason string) error {
	t, err := s.get(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return s.rollbackLocked(ctx, t, t.rollback, reason)
}

// rollbackLocked drives the failed|crashed -> rolling_back -> rolled_back|failed
// edges. Caller holds t.mu.
func (s *Supervisor) rollbackLocked(ctx context.Context, t *tracked, op healing.Operation, trigger string) error {
	if !t.machine.CanRollback() {
		return fmt.Errorf("deployment %s: rollback not allowed from %s",
			t.deployment.ID, t.machine.Status())
	}

	if _, err := t.machine.Transition(domain.StatusRollingBack, trigger, nil); err != nil {
		return err
	}
	metrics.RollbacksTotal.WithLabelValues(t.deployment.Service, trigger).Inc()

	if op.Run == nil {
		_, err := t.machine.Transition(domain.StatusRolledBack, "no rollback action configured", nil)
		return err
	}

	result, err := s.executeStage(ctx, t, op)
	if err != nil {
		return err
	}
	if result.Cancelled {
		return result.FinalError
	}
	if result.Succeeded {
		_, err := t.machine.Transition(domain.StatusRolledBack, "rollback complete", nil)
		return err
	}

	last := result.LastAttempt()
	if _, terr := t.machine.Transition(domain.StatusFailed, "rollback failed: "+last.ErrorType.String(), nil); terr != nil {
		s.log.Error("failed to record rollback failure", "deployment", t.deployment.ID, "error", terr)
	}
	s.escalate(ctx, t, result)
	return fmt.Errorf("rollback for %s failed: %w", t.deployment.Service, result.FinalError)
}

// executeStage runs one remote action through the healing loop, honoring
// any stored retry-after hint for the service and recording metrics.
func (s *Supervisor) executeStage(ctx context.Context, t *tracked, op healing.Operation) (healing.Result, error) {
	loop := s.loop
	if wait, err := s.redisClient.RetryAfterHint(ctx, t.deployment.Service); err == nil && wait > 0 {
		loop = loop.WithMinRateLimitWait(wait)
	}

	result, err := loop.Execute(ctx, op)
	if err != nil {
		return result, err
	}

	outcome := "success"
	if result.Cancelled {
		outcome = "cancelled"
	} else if !result.Succeeded {
		outcome = "failure"
	}
	metrics.HealingRunsTotal.WithLabelValues(op.Name, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(op.Name).Observe(result.TotalDuration.Seconds())
	for _, attempt := range result.Attempts {
		if attempt.Err != "" {
			metrics.HealingAttemptsTotal.WithLabelValues(op.Name, attempt.ErrorType.String()).Inc()
		}
	}

	return result, nil
}

// escalate queues a given-up failure for operator attention.
func (s *Supervisor) escalate(ctx context.Context, t *tracked, result healing.Result) {
	last := result.LastAttempt()
	metrics.EscalationsTotal.WithLabelValues(t.deployment.Service, last.ErrorType.String()).Inc()

	esc := &domain.Escalation{
		ID:           uuid.NewString(),
		DeploymentID: t.deployment.ID,
		Service:      t.deployment.Service,
		Operation:    result.OperationName,
		ErrorType:    last.ErrorType.String(),
		Attempts:     len(result.Attempts),
		EscalatedAt:  time.Now().UTC(),
	}
	if result.FinalError != nil {
		esc.Error = result.FinalError.Error()
	}

	if err := s.queue.Push(ctx, esc); err != nil {
		s.log.Warn("failed to queue escalation", "service", t.deployment.Service, "error", err)
	}
	s.log.Error("operation escalated",
		"service", t.deployment.Service,
		"operation", result.OperationName,
		"error_type", esc.ErrorType,
		"attempts", esc.Attempts)
}

// Start starts the health server, background workers and the configured
// deployment pipelines.
func (s *Supervisor) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	go s.healthMon.Start(ctx)

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
	if s.pruner != nil {
		s.log.Info("Starting transition log pruner", "ttl", s.cfg.Retention.TransitionTTL)
		go s.pruner.Start(ctx)
	}

	for _, dcfg := range s.cfg.Deployments {
		d, err := s.Create(ctx, dcfg)
		if err != nil {
			return err
		}

		ops := OpsFromCommands(dcfg)
		s.log.Info("Starting pipeline", "service", dcfg.Service)
		go func(id, service string, ops PipelineOps) {
			if err := s.RunPipeline(ctx, id, ops); err != nil {
				s.log.Error("Pipeline failed", "service", service, "error", err)
			}
		}(d.ID, dcfg.Service, ops)
	}

	go s.probeLoop(ctx)

	return nil
}

// Stop stops the supervisor.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.log.Info("Stopping supervisor...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		defer func() {
			_ = s.db.Close()
		}()
	}

	return s.healthServer.Stop(ctx)
}

// probeLoop periodically checks every active deployment's target.
func (s *Supervisor) probeLoop(ctx context.Context) {
	interval := s.cfg.Probe.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeAll(ctx)
		}
	}
}

func (s *Supervisor) probeAll(ctx context.Context) {
	for _, t := range s.snapshot() {
		if t.prober == nil || t.machine.Status() != domain.StatusActive {
			continue
		}

		start := time.Now()
		err := t.prober.Check(ctx)
		latency := time.Since(start)
		t.monitor.Record(err, latency)

		service := t.deployment.Service
		kind := string(t.cfg.Probe.Kind)
		metrics.ProbeLatency.WithLabelValues(service, kind).Observe(latency.Seconds())

		if err == nil {
			continue
		}
		metrics.ProbeFailuresTotal.WithLabelValues(service, kind).Inc()
		s.log.Warn("probe failed",
			"service", service,
			"consecutive", t.monitor.ConsecutiveFailures(),
			"error", err)

		// Surface Retry-After hints to later remote operations.
		if ra, ok := t.prober.(interface{ RetryAfter() time.Duration }); ok {
			if wait := ra.RetryAfter(); wait > 0 {
				if herr := s.redisClient.SetRetryAfterHint(ctx, service, wait); herr != nil {
					s.log.Warn("failed to store retry-after hint", "service", service, "error", herr)
				}
			}
		}

		if t.monitor.ConsecutiveFailures() >= s.cfg.Probe.CrashThreshold {
			s.markCrashed(ctx, t, err)
		}
	}
}

// markCrashed moves an active deployment to crashed after repeated probe
// failures and optionally starts an auto-rollback.
func (s *Supervisor) markCrashed(ctx context.Context, t *tracked, probeErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check under the lock; a rollback may already be underway.
	if t.machine.Status() != domain.StatusActive {
		return
	}

	if _, err := t.machine.Transition(domain.StatusCrashed, healing.Classify(probeErr).String(), map[string]string{
		"probe_error": probeErr.Error(),
	}); err != nil {
		s.log.Error("failed to record crash", "deployment", t.deployment.ID, "error", err)
		return
	}

	s.log.Error("deployment crashed",
		"service", t.deployment.Service,
		"deployment", t.deployment.ID,
		"probe_error", probeErr)

	if s.cfg.Probe.AutoRollback && t.rollback.Run != nil {
		if err := s.rollbackLocked(ctx, t, t.rollback, "auto"); err != nil {
			s.log.Error("auto-rollback failed", "service", t.deployment.Service, "error", err)
		}
	}
}

// Deployment returns the live view of one deployment, falling back to
// storage for deployments this instance does not track.
func (s *Supervisor) Deployment(ctx context.Context, id string) (*domain.Deployment, error) {
	if t, err := s.get(id); err == nil {
		d := *t.deployment
		d.Status = t.machine.Status()
		return &d, nil
	}
	return s.deployments.Get(ctx, id)
}

// History returns the transition history of one deployment.
func (s *Supervisor) History(ctx context.Context, id string) ([]domain.TransitionRecord, error) {
	if t, err := s.get(id); err == nil {
		return t.machine.HistorySnapshot(), nil
	}
	return s.transitions.History(ctx, id)
}

// Metrics returns aggregated lifecycle activity across deployments.
func (s *Supervisor) Metrics() lifecycle.Metrics {
	return s.collector.GetMetrics()
}

// DeploymentHealth implements health.DeploymentSource.
func (s *Supervisor) DeploymentHealth() []health.DeploymentHealth {
	tracked := s.snapshot()
	out := make([]health.DeploymentHealth, 0, len(tracked))

	for _, t := range tracked {
		status := t.machine.Status()
		dh := health.DeploymentHealth{
			Service:             t.deployment.Service,
			DeploymentID:        t.deployment.ID,
			Lifecycle:           string(status),
			ConsecutiveFailures: t.monitor.ConsecutiveFailures(),
		}

		switch {
		case status == domain.StatusFailed || status == domain.StatusCrashed:
			dh.Status = health.StatusCritical
		case status == domain.StatusRollingBack || dh.ConsecutiveFailures > 0:
			dh.Status = health.StatusDegraded
		default:
			dh.Status = health.StatusHealthy
		}

		if t.prober != nil {
			dh.ProbeStatus = t.monitor.Status().String()
			if avg := t.monitor.AverageLatency(); avg > 0 {
				dh.AverageProbeLatency = avg.String()
			}
		}
		out = append(out, dh)
	}
	return out
}

func (s *Supervisor) get(id string) (*tracked, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.registry[id]
	if !ok {
		return nil, fmt.Errorf("deployment %s is not supervised", id)
	}
	return t, nil
}

func (s *Supervisor) snapshot() []*tracked {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*tracked, 0, len(s.registry))
	for _, t := range s.registry {
		out = append(out, t)
	}
	return out
}
