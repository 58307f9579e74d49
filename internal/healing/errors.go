package healing

// ErrorType classifies a caught operation failure. The classification
// drives strategy selection; it covers remote-operation failures only,
// never programming errors.
type ErrorType int

const (
	ErrorUnknown ErrorType = iota
	ErrorTransientNetwork
	ErrorRateLimit
	ErrorBuildFailure
	ErrorAuthFailure
	ErrorResourceExhausted
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTransientNetwork:
		return "transient_network"
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorBuildFailure:
		return "build_failure"
	case ErrorAuthFailure:
		return "auth_failure"
	case ErrorResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}
