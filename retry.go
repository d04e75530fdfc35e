package relay

import (
	"context"
	"errors"
	"time"
)

// RetryOption configures WithRetry.
type RetryOption func(*retryModel)

// RetryAttempts sets the total number of attempts, first call included.
// Default 3.
func RetryAttempts(n int) RetryOption {
	return func(m *retryModel) { m.attempts = n }
}

// RetryBaseDelay sets the delay before the first retry; later retries
// double it. Default 500ms.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(m *retryModel) { m.baseDelay = d }
}

// RetryMaxDelay caps the backoff delay. Default 10s.
func RetryMaxDelay(d time.Duration) RetryOption {
	return func(m *retryModel) { m.maxDelay = d }
}

// WithRetry wraps a model with transparent retries on transient transport
// failures: *ErrHTTP 429 and 503. Backoff is exponential with a cap, and
// a server-provided Retry-After takes precedence. Streamed responses are
// retried only while nothing has been delivered; once a delta reached
// the consumer the attempt is final.
func WithRetry(m Model, opts ...RetryOption) Model {
	rm := &retryModel{
		inner:     m,
		attempts:  3,
		baseDelay: 500 * time.Millisecond,
		maxDelay:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(rm)
	}
	if rm.attempts < 1 {
		rm.attempts = 1
	}
	return rm
}

type retryModel struct {
	inner     Model
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func (m *retryModel) Name() string { return m.inner.Name() }

func (m *retryModel) Respond(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	var lastErr error
	for attempt := 0; attempt < m.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, m.retryDelay(attempt, lastErr)); err != nil {
				return nil, err
			}
		}
		resp, err := m.inner.Respond(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (m *retryModel) RespondStream(ctx context.Context, req ModelRequest, ch chan<- ModelDelta) (*ModelResponse, error) {
	defer close(ch)
	var lastErr error
	for attempt := 0; attempt < m.attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, m.retryDelay(attempt, lastErr)); err != nil {
				return nil, err
			}
		}

		// Each attempt streams into a fresh inner channel. Forwarding
		// counts deliveries: an attempt that already surfaced a delta
		// cannot be retried without duplicating consumer-visible output.
		inner := make(chan ModelDelta)
		delivered := false
		done := make(chan struct{})
		go func() {
			defer close(done)
			for d := range inner {
				select {
				case ch <- d:
					delivered = true
				case <-ctx.Done():
					// Keep draining so the producer can finish.
				}
			}
		}()
		resp, err := m.inner.RespondStream(ctx, req, inner)
		<-done
		if err == nil {
			return resp, nil
		}
		if delivered || !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// retryDelay computes the wait before the attempt'th try. A
// server-provided Retry-After wins over the exponential schedule.
func (m *retryModel) retryDelay(attempt int, lastErr error) time.Duration {
	var he *ErrHTTP
	if errors.As(lastErr, &he) && he.RetryAfter > 0 {
		return he.RetryAfter
	}
	d := m.baseDelay << (attempt - 1)
	if d > m.maxDelay || d <= 0 {
		d = m.maxDelay
	}
	return d
}

// isTransient reports whether a model call is worth retrying: rate
// limiting and temporary unavailability. Everything else, including other
// 4xx and malformed responses, fails fast.
func isTransient(err error) bool {
	var he *ErrHTTP
	if !errors.As(err, &he) {
		return false
	}
	return he.Status == 429 || he.Status == 503
}

// sleepCtx waits for d or for cancellation, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
