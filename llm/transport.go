package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Transport defaults.
const (
	DefaultRequestInterval = 2 * time.Second
	DefaultMaxRetries      = 3
	DefaultBackoff         = 20 * time.Second
)

// Transport wraps a Client with request pacing and bounded retry on rate
// limits. All other failures pass through untouched on the first attempt.
type Transport struct {
	client     Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// TransportConfig tunes a Transport. Zero values take the defaults above.
type TransportConfig struct {
	RequestInterval time.Duration // minimum spacing between requests
	MaxRetries      int           // retries after the first attempt
	Backoff         time.Duration // wait when the server suggests none
}

func NewTransport(client Client, cfg TransportConfig, logger *slog.Logger) *Transport {
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = DefaultRequestInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Transport{
		client:     client,
		limiter:    rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		logger:     logger,
	}
}

func (t *Transport) Model() string { return t.client.Model() }

// Send paces, calls the client, and retries rate limits up to the configured
// ceiling. Any non-rate-limit failure is returned immediately.
func (t *Transport) Send(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pacing wait: %w", err)
		}

		resp, err := t.client.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return nil, err
		}
		lastErr = err

		if attempt == t.maxRetries {
			break
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = t.backoff
		}
		t.logger.Warn("rate limited, backing off",
			"attempt", attempt+1, "max_retries", t.maxRetries, "wait", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("rate limit retries exhausted after %d attempts: %w", t.maxRetries+1, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
