package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrAttemptsExhausted is returned once every allowed attempt failed at the transport level.
	ErrAttemptsExhausted = errors.New("github request attempts exhausted")
	// ErrRateLimited is returned when GitHub asks for a pause longer than the policy allows.
	ErrRateLimited = errors.New("github rate limit pause exceeds maximum wait")
)

// RetryConfig configures GitHub client retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RetryConfigFromMaxRetries converts a "retries after the first try" ceiling into attempts.
func RetryConfigFromMaxRetries(maxRetries int, initialBackoff, maxBackoff time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:    max(maxRetries, 0) + 1,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// backoff returns the exponential pause after the given failed attempt.
func (r RetryConfig) backoff(attempt int) time.Duration {
	wait := r.InitialBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if r.MaxBackoff > 0 && wait >= r.MaxBackoff {
			break
		}
	}
	if r.MaxBackoff > 0 && wait > r.MaxBackoff {
		return r.MaxBackoff
	}
	return wait
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts int
	Budget   RateBudget
	Pause    Pause
}

// Client wraps GitHub HTTP requests with retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	// Sleep waits between attempts and returns early with ctx's error.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a GitHub API client wrapper.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	retry.MaxAttempts = max(retry.MaxAttempts, 1)
	return &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      sleepContext,
	}
}

// WithRetry returns a copy of the client that uses a different retry ceiling.
func (c *Client) WithRetry(retry RetryConfig) *Client {
	retry.MaxAttempts = max(retry.MaxAttempts, 1)
	cloned := *c
	cloned.retry = retry
	return &cloned
}

// MaxAttempts reports the configured attempt ceiling.
func (c *Client) MaxAttempts() int {
	return c.retry.MaxAttempts
}

// Do executes a request with retry and rate-limit awareness. The request body must be
// replayable (http.NewRequest sets GetBody for in-memory readers).
//
// Transport errors and non-2xx responses are retried. Rate-limited responses wait
// for the policy's pause first; a 2xx response is returned whatever budget it reports.
// When the attempts run out on a transport error Do returns ErrAttemptsExhausted; on
// a failed response it returns that last response so the caller can report its status.
func (c *Client) Do(req *http.Request) (resp *http.Response, metadata CallMetadata, err error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx, span := telemetry.StartDependencySpan(req.Context(), "internal/githubapi", "githubapi.client.do",
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.URL.EscapedPath()),
		attribute.Int("github.max_attempts", c.retry.MaxAttempts),
	)
	defer func() {
		span.SetAttributes(attribute.Int("github.attempts", metadata.Attempts))
		telemetry.EndSpan(span, err, "request completed")
	}()

	for attempt := 1; ; attempt++ {
		metadata.Attempts = attempt
		last := attempt >= c.retry.MaxAttempts

		attemptReq, err := rewind(ctx, req)
		if err != nil {
			return nil, metadata, fmt.Errorf("rewind request body: %w", err)
		}
		resp, err := c.doer.Do(attemptReq)
		if err != nil {
			span.AddEvent("attempt_failed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.String("error", err.Error()),
			))
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, metadata, ctxErr
			}
			if last {
				return nil, metadata, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt, err)
			}
			if err := c.Sleep(ctx, c.retry.backoff(attempt)); err != nil {
				return nil, metadata, err
			}
			continue
		}

		metadata.Budget = ReadRateBudget(resp)
		metadata.Pause = c.ratePolicy.PauseFor(metadata.Budget)
		span.AddEvent("attempt_completed", trace.WithAttributes(
			attribute.Int("github.attempt", attempt),
			attribute.Int("http.status_code", resp.StatusCode),
			attribute.Int("github.rate_limit_remaining", metadata.Budget.Remaining),
			attribute.String("github.rate_limit_resource", metadata.Budget.Resource),
			attribute.String("github.rate_limit_reason", metadata.Pause.Reason),
		))

		if isSuccessStatus(resp.StatusCode) || last {
			return resp, metadata, nil
		}
		closeBody(resp)

		wait := c.retry.backoff(attempt)
		if rateLimited(resp.StatusCode, metadata.Budget) && !metadata.Pause.Proceed() {
			if c.ratePolicy.TooLong(metadata.Pause) {
				return nil, metadata, fmt.Errorf("%w: %s pause of %s", ErrRateLimited, metadata.Pause.Reason, metadata.Pause.Wait)
			}
			wait = metadata.Pause.Wait
		}
		if err := c.Sleep(ctx, wait); err != nil {
			return nil, metadata, err
		}
	}
}

// rateLimited reports a refusal caused by secondary limiting or an exhausted
// primary budget.
func rateLimited(statusCode int, budget RateBudget) bool {
	if budget.Throttled {
		return true
	}
	return statusCode == http.StatusForbidden && budget.Reported && budget.Remaining == 0
}

func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	cloned := req.Clone(ctx)
	if req.Body == nil || req.GetBody == nil {
		return cloned, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	cloned.Body = body
	return cloned, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func isSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 299
}
