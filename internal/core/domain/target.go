package domain

// TargetKind identifies the probe transport for a deploy target.
type TargetKind string

const (
	TargetHTTP TargetKind = "http"
	TargetGRPC TargetKind = "grpc"
)

// Target describes the health endpoint of a deployed service instance.
// Active deployments are probed through their target; repeated probe
// failures mark the deployment crashed.
type Target struct {
	Name         string
	DeploymentID string
	Kind         TargetKind
	Endpoint     string
	// GRPCService is the service name passed to the gRPC health check.
	// Empty means the overall server health.
	GRPCService string
}
