package githubapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateBudget is the rate-limit state GitHub reported on one response.
// GraphQL calls report Resource "graphql" and draw from a separate point budget.
type RateBudget struct {
	Resource   string
	Limit      int
	Remaining  int
	Used       int
	Reset      time.Time
	RetryAfter time.Duration
	// Reported is false when the response carried no X-RateLimit-Remaining header,
	// as with GitHub Enterprise instances that have rate limiting disabled.
	Reported bool
	// Throttled marks secondary limiting: 429, or 403 carrying Retry-After.
	Throttled bool
}

// ReadRateBudget extracts the rate-limit headers from resp.
func ReadRateBudget(resp *http.Response) RateBudget {
	if resp == nil {
		return RateBudget{}
	}
	header := resp.Header
	budget := RateBudget{
		Resource: strings.TrimSpace(header.Get("X-RateLimit-Resource")),
		Limit:    headerInt(header, "X-RateLimit-Limit"),
		Used:     headerInt(header, "X-RateLimit-Used"),
	}
	if raw := strings.TrimSpace(header.Get("X-RateLimit-Remaining")); raw != "" {
		if remaining, err := strconv.Atoi(raw); err == nil {
			budget.Remaining = remaining
			budget.Reported = true
		}
	}
	if reset, err := strconv.ParseInt(strings.TrimSpace(header.Get("X-RateLimit-Reset")), 10, 64); err == nil && reset > 0 {
		budget.Reset = time.Unix(reset, 0)
	}
	if seconds := headerInt(header, "Retry-After"); seconds > 0 {
		budget.RetryAfter = time.Duration(seconds) * time.Second
	}

	budget.Throttled = resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && budget.RetryAfter > 0)
	return budget
}

// Pause is the wait a RateLimitPolicy asks for before the next call.
type Pause struct {
	Wait   time.Duration
	Reason string
}

// Proceed reports whether the call may continue without waiting.
func (p Pause) Proceed() bool {
	return p.Wait <= 0
}

// RateLimitPolicy turns a RateBudget into a Pause.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	// MaxWait bounds a single pause. Zero means unbounded.
	MaxWait time.Duration
	Now     func() time.Time
}

// PauseFor decides how long to wait after a response carrying budget.
func (p RateLimitPolicy) PauseFor(budget RateBudget) Pause {
	if budget.Throttled {
		return Pause{Wait: max(p.SecondaryLimitBackoff, budget.RetryAfter), Reason: "secondary_limit"}
	}
	if !budget.Reported {
		return Pause{Reason: "unreported"}
	}
	if budget.Remaining >= p.MinRemainingThreshold {
		return Pause{Reason: "within_budget"}
	}

	untilReset := budget.Reset.Sub(p.now())
	if budget.Reset.IsZero() || untilReset <= 0 {
		return Pause{Reason: "reset_elapsed"}
	}
	return Pause{Wait: untilReset + p.MinResetBuffer, Reason: "budget_low"}
}

// TooLong reports whether pause exceeds the policy's MaxWait.
func (p RateLimitPolicy) TooLong(pause Pause) bool {
	return p.MaxWait > 0 && pause.Wait > p.MaxWait
}

func (p RateLimitPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func headerInt(header http.Header, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(header.Get(key)))
	if err != nil {
		return 0
	}
	return value
}
