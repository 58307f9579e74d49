// Package control wires the lifecycle and healing cores to storage,
// probes and the escalation queue, and drives deployment pipelines.
package control

import (
	"github.com/vietddude/shepherd/internal/core/config"
	"github.com/vietddude/shepherd/internal/healing"
	redisclient "github.com/vietddude/shepherd/internal/infra/redis"
	"github.com/vietddude/shepherd/internal/infra/storage/postgres"
)

// Config holds the supervisor configuration assembled by the CLI.
type Config struct {
	Port        int
	Ephemeral   bool // force memory storage even when a database is configured
	Deployments []config.DeploymentConfig
	Healing     config.HealingConfig
	Probe       config.ProbeConfig
	Retention   config.RetentionConfig
	Redis       redisclient.Config
	Database    postgres.Config
}

// PipelineOps carries the remote actions for one deployment run. Callers
// bind arguments via closures before constructing the operations; a
// zero-value Operation means the stage has no remote action.
type PipelineOps struct {
	Build    healing.Operation
	Deploy   healing.Operation
	Rollback healing.Operation
}

// OpsFromCommands builds shell-backed pipeline operations from a
// deployment's configured commands.
func OpsFromCommands(d config.DeploymentConfig) PipelineOps {
	var ops PipelineOps
	if len(d.BuildCommand) > 0 {
		ops.Build = healing.ShellOperation("build "+d.Service, d.BuildCommand)
	}
	if len(d.DeployCommand) > 0 {
		ops.Deploy = healing.ShellOperation("deploy "+d.Service, d.DeployCommand)
	}
	if len(d.RollbackCommand) > 0 {
		ops.Rollback = healing.ShellOperation("rollback "+d.Service, d.RollbackCommand)
	}
	return ops
}
