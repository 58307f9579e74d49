package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// Prober checks the health endpoint of one deploy target. Check errors
// are phrased so the healing classifier can recognize rate limiting,
// auth problems and transient upstream failures from the text alone.
type Prober interface {
	Name() string
	Check(ctx context.Context) error
}

// HTTPProbe probes a target over plain HTTP. Any 2xx response is healthy.
type HTTPProbe struct {
	target     domain.Target
	httpClient *http.Client

	mu         sync.RWMutex
	retryAfter time.Duration
}

// NewHTTPProbe creates an HTTP probe for a target.
func NewHTTPProbe(target domain.Target, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		target: target,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the target name.
func (p *HTTPProbe) Name() string {
	return p.target.Name
}

// Check performs one health check against the target endpoint.
func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("probe %s: create request: %w", p.target.Name, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Transport errors already carry phrases like "connection
		// refused" or "no such host".
		return fmt.Errorf("probe %s: %w", p.target.Name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	p.setRetryAfter(0)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		p.setRetryAfter(parseRetryAfter(retryAfter))
		return fmt.Errorf("probe %s: rate limited (429), retry after: %s", p.target.Name, retryAfter)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("probe %s: %s (%d)", p.target.Name,
			http.StatusText(resp.StatusCode), resp.StatusCode)

	case resp.StatusCode == http.StatusBadGateway ||
		resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("probe %s: http %d, upstream temporarily unavailable", p.target.Name, resp.StatusCode)

	default:
		return fmt.Errorf("probe %s: http %d", p.target.Name, resp.StatusCode)
	}
}

// RetryAfter returns the wait the target asked for on the last
// rate-limited response, or zero.
func (p *HTTPProbe) RetryAfter() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.retryAfter
}

func (p *HTTPProbe) setRetryAfter(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retryAfter = d
}

// parseRetryAfter handles the delay-seconds form of the header. The
// HTTP-date form is rare on health endpoints and falls back to a minute.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Minute
}
