package api

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/loadpilot/loadpilot/internal/auth"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// RetryPolicy configures retry behavior for a single operation.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // dynamic backoff; attempt is 1-based
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}

// DefaultRetryPolicy retries connection failures, 429s and 5xx responses
// with exponential backoff plus jitter. retries is the number of extra
// attempts after the first; cancellation and rejected credentials are
// never retried.
func DefaultRetryPolicy(retries int) RetryPolicy {
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}

			var authErr *auth.Error
			if errors.As(err, &authErr) {
				return false
			}

			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				if reqErr.StatusCode == http.StatusTooManyRequests {
					return true
				}
				return reqErr.StatusCode >= 500
			}

			return true
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

// withRetry runs fn under the policy and reports how many attempts were
// made. It never starts an attempt after ctx is done.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return attempt - 1, ctx.Err()
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		// Don't delay after the last attempt.
		if attempt < maxAttempts {
			if policy.ShouldRetry != nil && !policy.ShouldRetry(lastErr) {
				return attempt, lastErr
			}
			var delay time.Duration
			if policy.DelayFunc != nil {
				delay = policy.DelayFunc(attempt, lastErr)
			} else {
				delay = policy.Delay
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return attempt, ctx.Err()
				}
			}
		}
	}
	return maxAttempts, lastErr
}
