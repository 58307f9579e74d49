package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Probe.Interval == 0 {
		cfg.Probe.Interval = 15 * time.Second
	}
	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = 5 * time.Second
	}
	if cfg.Probe.CrashThreshold == 0 {
		cfg.Probe.CrashThreshold = 3
	}
	if cfg.Retention.Interval == 0 {
		cfg.Retention.Interval = time.Hour
	}

	seen := make(map[string]bool)
	for i := range cfg.Deployments {
		d := &cfg.Deployments[i]
		if d.Service == "" {
			return nil, fmt.Errorf("deployment %d: service name is required", i)
		}
		if seen[d.Service] {
			return nil, fmt.Errorf("duplicate deployment service %q", d.Service)
		}
		seen[d.Service] = true

		if d.Environment == "" {
			d.Environment = "production"
		}
		if d.Probe.Kind == "" {
			d.Probe.Kind = string(domain.TargetHTTP)
		}
		switch domain.TargetKind(d.Probe.Kind) {
		case domain.TargetHTTP, domain.TargetGRPC:
		default:
			return nil, fmt.Errorf("deployment %q: unknown probe kind %q", d.Service, d.Probe.Kind)
		}
	}

	return &cfg, nil
}
