package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/prototext"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// GRPCProbe probes a target through the standard gRPC health service.
type GRPCProbe struct {
	target  domain.Target
	conn    *grpc.ClientConn
	timeout time.Duration
	log     *slog.Logger

	mu         sync.RWMutex
	retryAfter time.Duration
}

// NewGRPCProbe dials the target and prepares a health-check probe.
func NewGRPCProbe(ctx context.Context, target domain.Target, timeout time.Duration) (*GRPCProbe, error) {
	// Parse endpoint to determine if TLS is needed
	endpoint := target.Endpoint
	dialTarget := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		dialTarget = strings.TrimPrefix(dialTarget, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		dialTarget = strings.TrimPrefix(dialTarget, "http://")
	}

	opts = append(opts, grpc.WithBlock())

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, dialTarget, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial grpc endpoint %s: %w", dialTarget, err)
	}

	return &GRPCProbe{
		target:  target,
		conn:    conn,
		timeout: timeout,
		log:     slog.Default(),
	}, nil
}

// Name returns the target name.
func (p *GRPCProbe) Name() string {
	return p.target.Name
}

// Check calls grpc.health.v1.Health/Check for the configured service.
func (p *GRPCProbe) Check(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := grpc_health_v1.NewHealthClient(p.conn)
	resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{
		Service: p.target.GRPCService,
	})
	if err != nil {
		return p.classifyRPCError(err)
	}

	p.setRetryAfter(0)
	p.log.Debug("grpc health response",
		"target", p.target.Name,
		"response", prototext.Format(resp))

	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("probe %s: health status %s", p.target.Name, resp.GetStatus())
	}
	return nil
}

// RetryAfter returns the delay the server requested via RetryInfo on the
// last failed check, or zero.
func (p *GRPCProbe) RetryAfter() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.retryAfter
}

// Close releases the connection.
func (p *GRPCProbe) Close() error {
	return p.conn.Close()
}

func (p *GRPCProbe) setRetryAfter(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryAfter = d
}

// classifyRPCError rephrases a gRPC status so the healing classifier
// lands on the right error type, and captures any RetryInfo detail.
func (p *GRPCProbe) classifyRPCError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("probe %s: %w", p.target.Name, err)
	}

	var retryAfter time.Duration
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.RetryInfo); ok {
			retryAfter = info.GetRetryDelay().AsDuration()
		}
	}
	p.setRetryAfter(retryAfter)

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		if retryAfter > 0 {
			return fmt.Errorf("probe %s: upstream temporarily unavailable, retry after %s: %s",
				p.target.Name, retryAfter, st.Message())
		}
		return fmt.Errorf("probe %s: upstream temporarily unavailable: %s", p.target.Name, st.Message())
	case codes.ResourceExhausted:
		return fmt.Errorf("probe %s: resource exhausted: %s", p.target.Name, st.Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("probe %s: permission denied: %s", p.target.Name, st.Message())
	default:
		return fmt.Errorf("probe %s: rpc %s: %s", p.target.Name, st.Code(), st.Message())
	}
}
