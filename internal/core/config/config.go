package config

import (
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/healing"
	redisclient "github.com/vietddude/shepherd/internal/infra/redis"
	"github.com/vietddude/shepherd/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Deployments []DeploymentConfig `yaml:"deployments"`
	Redis       redisclient.Config `yaml:"redis"`
	Logging     LoggingConfig      `yaml:"logging"`
	Database    postgres.Config    `yaml:"database"`
	Healing     HealingConfig      `yaml:"healing"`
	Probe       ProbeConfig        `yaml:"probe"`
	Retention   RetentionConfig    `yaml:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DeploymentConfig holds settings for one supervised service.
type DeploymentConfig struct {
	Service         string       `yaml:"service"`
	Image           string       `yaml:"image"`
	Environment     string       `yaml:"environment"`
	BuildCommand    []string     `yaml:"build_command"`
	DeployCommand   []string     `yaml:"deploy_command"`
	RollbackCommand []string     `yaml:"rollback_command"`
	Probe           TargetConfig `yaml:"probe"`
}

// TargetConfig describes how a deployed service is probed.
type TargetConfig struct {
	Kind        string `yaml:"kind"` // http or grpc
	Endpoint    string `yaml:"endpoint"`
	GRPCService string `yaml:"grpc_service"` // optional service name for grpc health checks
}

// Target converts the config entry into a domain probe target.
func (t TargetConfig) Target(name, deploymentID string) domain.Target {
	return domain.Target{
		Name:         name,
		DeploymentID: deploymentID,
		Kind:         domain.TargetKind(t.Kind),
		Endpoint:     t.Endpoint,
		GRPCService:  t.GRPCService,
	}
}

// HealingConfig holds retry behavior for remote operations.
type HealingConfig struct {
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	JitterFraction   float64       `yaml:"jitter_fraction"`
	MinRateLimitWait time.Duration `yaml:"min_rate_limit_wait"`
}

// LoopConfig converts to the healing package's config.
func (c HealingConfig) LoopConfig() healing.Config {
	return healing.Config{
		MaxRetries:       c.MaxRetries,
		BaseDelay:        c.BaseDelay,
		MaxDelay:         c.MaxDelay,
		JitterFraction:   c.JitterFraction,
		MinRateLimitWait: c.MinRateLimitWait,
	}
}

// ProbeConfig holds target liveness probing settings.
type ProbeConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	CrashThreshold int           `yaml:"crash_threshold"` // consecutive failures before crashed
	AutoRollback   bool          `yaml:"auto_rollback"`
}

// RetentionConfig holds transition log retention settings.
type RetentionConfig struct {
	TransitionTTL time.Duration `yaml:"transition_ttl"` // 0 = keep forever
	Interval      time.Duration `yaml:"interval"`
}
