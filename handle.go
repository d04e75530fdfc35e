package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// RunStatus is the lifecycle state of a streamed run.
type RunStatus int32

const (
	// RunPending means the run has not taken its first turn yet.
	RunPending RunStatus = iota
	// RunRunning means the run is executing turns.
	RunRunning
	// RunCompleted means the run finished with a result.
	RunCompleted
	// RunFailed means the run terminated with an error.
	RunFailed
	// RunCancelled means the run stopped because its context was
	// cancelled, via Cancel or the caller's parent context.
	RunCancelled
)

func (s RunStatus) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the run has stopped.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// RunHandle is the live view of a streamed run. The intended consumption
// order is: range over Events() until it closes, then Wait() for the
// terminal outcome.
//
// Events() is unbuffered: the run advances only as fast as the consumer
// receives, and cancellation takes effect between events. A consumer that
// abandons the handle without Cancel leaks the run goroutine.
type RunHandle struct {
	events chan StreamEvent
	ctx    context.Context
	cancel context.CancelFunc
	status atomic.Int32
	done   chan struct{}

	mu     sync.Mutex
	result *RunResult
	err    error
}

func newRunHandle(parent context.Context) *RunHandle {
	ctx, cancel := context.WithCancel(parent)
	return &RunHandle{
		events: make(chan StreamEvent),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Events returns the run's event stream. The channel closes when the run
// reaches a terminal state.
func (h *RunHandle) Events() <-chan StreamEvent { return h.events }

// Cancel requests cooperative cancellation. The run stops at the next
// event boundary; in-flight tool handlers see their context cancelled.
// Safe to call more than once.
func (h *RunHandle) Cancel() { h.cancel() }

// Wait blocks until the run reaches a terminal state and returns its
// outcome. The error taxonomy matches Run.
func (h *RunHandle) Wait() (*RunResult, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Status returns the run's current lifecycle state.
func (h *RunHandle) Status() RunStatus { return RunStatus(h.status.Load()) }

func (h *RunHandle) markRunning() {
	h.status.CompareAndSwap(int32(RunPending), int32(RunRunning))
}

// finish records the terminal outcome and releases Wait. The events
// channel stays open; the producing goroutine closes it after any final
// event.
func (h *RunHandle) finish(res *RunResult, err error) {
	h.mu.Lock()
	h.result = res
	h.err = err
	h.mu.Unlock()
	switch {
	case err == nil:
		h.status.Store(int32(RunCompleted))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		h.status.Store(int32(RunCancelled))
	default:
		h.status.Store(int32(RunFailed))
	}
	close(h.done)
}

// emitFunc returns the loop's event sink. The cancellation pre-check
// makes "no events delivered after cancel" hold whenever cancel happens
// between events, which is the cooperative contract.
func (h *RunHandle) emitFunc() emitFunc {
	return func(ev StreamEvent) error {
		if err := h.ctx.Err(); err != nil {
			return err
		}
		select {
		case h.events <- ev:
			return nil
		case <-h.ctx.Done():
			return h.ctx.Err()
		}
	}
}

// tryEmit delivers a terminal event to a consumer that is still
// listening; a cancelled consumer is not waited for.
func (h *RunHandle) tryEmit(ev StreamEvent) {
	select {
	case h.events <- ev:
	case <-h.ctx.Done():
	}
}
