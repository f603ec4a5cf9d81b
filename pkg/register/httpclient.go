package register

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient is an interface matching the Do method of *http.Client.
// This allows injection of mock clients for testing and custom transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultRequestInterval is the default minimum interval between requests to
// the register, which is a small government service and easily overwhelmed.
const DefaultRequestInterval = 1 * time.Second

// RateLimitedHTTPClient wraps an HTTPClient with a token-bucket limiter.
// Waiting honours the request context, so a cancelled run stops queueing.
type RateLimitedHTTPClient struct {
	underlying HTTPClient
	limiter    *rate.Limiter
}

// NewRateLimitedHTTPClient creates a client that sends at most one request per
// requestInterval, allowing bursts of burst requests. A non-positive interval
// disables limiting.
func NewRateLimitedHTTPClient(underlying HTTPClient, requestInterval time.Duration, burst int) *RateLimitedHTTPClient {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if requestInterval > 0 {
		limit = rate.Every(requestInterval)
	}
	return &RateLimitedHTTPClient{
		underlying: underlying,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// Do waits for the limiter, then executes the request.
func (rateLimitedClient *RateLimitedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if err := rateLimitedClient.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return rateLimitedClient.underlying.Do(req)
}
