// Package health provides service health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the service or a
// component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse reports whether a outranks b in severity.
func (a SystemStatus) worse(b SystemStatus) bool {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	return rank[a] > rank[b]
}

// ComponentHealth describes one infrastructure dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// DeploymentHealth contains health metrics for one supervised deployment.
type DeploymentHealth struct {
	Service              string       `json:"service"`
	DeploymentID         string       `json:"deployment_id"`
	Status               SystemStatus `json:"status"`
	Lifecycle            string       `json:"lifecycle"`
	ProbeStatus          string       `json:"probe_status,omitempty"`
	ConsecutiveFailures  int          `json:"consecutive_probe_failures"`
	AverageProbeLatency  string       `json:"average_probe_latency,omitempty"`
}

// Report contains the full service health report.
type Report struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Components   []ComponentHealth           `json:"components"`
	Deployments  map[string]DeploymentHealth `json:"deployments"`
	Escalations  int                         `json:"queued_escalations"`
}
