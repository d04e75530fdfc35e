package relay

import (
	"context"
	"sync"
	"time"
)

// RateLimitOption configures WithRateLimit.
type RateLimitOption func(*rateLimitModel)

// RequestsPerMinute caps model invocations over a sliding one-minute
// window. Zero means unlimited.
func RequestsPerMinute(n int) RateLimitOption {
	return func(m *rateLimitModel) { m.rpm = n }
}

// TokensPerMinute caps total tokens over a sliding one-minute window.
// Token spend is only known after a response, so a single call may
// overshoot; subsequent calls wait it out. Zero means unlimited.
func TokensPerMinute(n int) RateLimitOption {
	return func(m *rateLimitModel) { m.tpm = n }
}

// WithRateLimit wraps a model with client-side request and token
// budgets. Calls block until the sliding windows have room, honoring
// cancellation while they wait. Wrap the shared model once; the budget
// then spans every agent and run using it.
func WithRateLimit(m Model, opts ...RateLimitOption) Model {
	rm := &rateLimitModel{inner: m, now: time.Now}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

const rateWindow = time.Minute

type tokenStamp struct {
	at time.Time
	n  int
}

type rateLimitModel struct {
	inner Model
	rpm   int
	tpm   int

	mu       sync.Mutex
	requests []time.Time
	tokens   []tokenStamp
	now      func() time.Time
}

func (m *rateLimitModel) Name() string { return m.inner.Name() }

func (m *rateLimitModel) Respond(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	if err := m.waitForBudget(ctx); err != nil {
		return nil, err
	}
	resp, err := m.inner.Respond(ctx, req)
	if resp != nil {
		m.recordTokens(resp.Usage.TotalTokens)
	}
	return resp, err
}

func (m *rateLimitModel) RespondStream(ctx context.Context, req ModelRequest, ch chan<- ModelDelta) (*ModelResponse, error) {
	if err := m.waitForBudget(ctx); err != nil {
		close(ch)
		return nil, err
	}
	resp, err := m.inner.RespondStream(ctx, req, ch)
	if resp != nil {
		m.recordTokens(resp.Usage.TotalTokens)
	}
	return resp, err
}

// waitForBudget blocks until both windows have room, then reserves a
// request slot.
func (m *rateLimitModel) waitForBudget(ctx context.Context) error {
	for {
		wait, ok := m.tryReserve()
		if ok {
			return nil
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// tryReserve prunes expired entries and either takes a request slot or
// reports how long until the oldest blocking entry leaves the window.
func (m *rateLimitModel) tryReserve() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-rateWindow)
	for len(m.requests) > 0 && m.requests[0].Before(cutoff) {
		m.requests = m.requests[1:]
	}
	tokenSum := 0
	kept := m.tokens[:0]
	for _, ts := range m.tokens {
		if ts.at.Before(cutoff) {
			continue
		}
		kept = append(kept, ts)
		tokenSum += ts.n
	}
	m.tokens = kept

	if m.rpm > 0 && len(m.requests) >= m.rpm {
		return m.requests[0].Sub(cutoff), false
	}
	if m.tpm > 0 && tokenSum >= m.tpm && len(m.tokens) > 0 {
		return m.tokens[0].at.Sub(cutoff), false
	}

	m.requests = append(m.requests, now)
	return 0, true
}

func (m *rateLimitModel) recordTokens(n int) {
	if m.tpm <= 0 || n <= 0 {
		return
	}
	m.mu.Lock()
	m.tokens = append(m.tokens, tokenStamp{at: m.now(), n: n})
	m.mu.Unlock()
}
