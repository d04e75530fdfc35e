package relay

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// A run terminates with exactly one of: a RunResult, ErrMaxTurns
// (resumable), ErrInputGuardrail, ErrOutputGuardrail, ErrModelBehavior,
// ErrUser, or ErrTool. None of them are retried internally; callers decide
// whether to resume, refuse, or restart.

// ErrUser reports a misconfiguration by the integrator: duplicate tool or
// hand-off names, a tool whose declaration contradicts its handler, a run
// started without a model. Fatal and surfaced at setup or first use.
type ErrUser struct {
	Message string
}

func (e *ErrUser) Error() string {
	return "user error: " + e.Message
}

// ErrModelBehavior reports model output that violates a declared contract:
// malformed tool arguments, an unknown tool or hand-off name, final output
// that does not parse into the agent's output type. Fatal to the current
// run; a caller may choose to re-run.
type ErrModelBehavior struct {
	Message string
}

func (e *ErrModelBehavior) Error() string {
	return "model behavior error: " + e.Message
}

// ErrTool carries an unrecovered tool handler failure. Handler errors are
// not converted into model-visible error messages; they terminate the run
// with the failing tool's identity attached. A tool that wants the model
// to see its failures must catch them and return an error string itself.
type ErrTool struct {
	Tool string
	Err  error
}

func (e *ErrTool) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ErrTool) Unwrap() error { return e.Err }

// ErrInputGuardrail is the early-exit signal raised when an input guardrail
// trips. It aborts the run before any model call on turn one and carries
// the triggering guardrail's output for caller inspection.
type ErrInputGuardrail struct {
	Result InputGuardrailResult
}

func (e *ErrInputGuardrail) Error() string {
	return fmt.Sprintf("input guardrail %q tripped", e.Result.Guardrail.Name)
}

// ErrOutputGuardrail is the early-exit signal raised when an output
// guardrail trips on the candidate final output.
type ErrOutputGuardrail struct {
	Result OutputGuardrailResult
}

func (e *ErrOutputGuardrail) Error() string {
	return fmt.Sprintf("output guardrail %q tripped", e.Result.Guardrail.Name)
}

// ErrMaxTurns reports an exhausted turn budget. It is an expected
// control-flow outcome, not a bug: the error carries a snapshot of the
// interrupted run and a single-use Resume that continues the same logical
// run with a fresh budget, the same RunContext identity, and the usage
// accumulated so far.
type ErrMaxTurns struct {
	// Turns is the number of turns consumed when the budget ran out.
	Turns int
	// State is the inspectable snapshot of the interrupted run.
	State *RunState

	mu     sync.Mutex
	resume func(ctx context.Context, opts ...ResumeOption) (*RunResult, error)
}

func (e *ErrMaxTurns) Error() string {
	return fmt.Sprintf("max turns exceeded after %d turns", e.Turns)
}

// Resume continues the interrupted run. The new budget counts from the
// turn the run stopped at: ResumeMaxTurns(5) grants five further turns.
// Additional input items are appended to the transcript before the next
// turn. Resume can be called once; a second call returns *ErrUser.
func (e *ErrMaxTurns) Resume(ctx context.Context, opts ...ResumeOption) (*RunResult, error) {
	e.mu.Lock()
	fn := e.resume
	e.resume = nil
	e.mu.Unlock()
	if fn == nil {
		return nil, &ErrUser{Message: "resume already consumed"}
	}
	return fn(ctx, opts...)
}

// Resumable reports whether Resume has not been consumed yet.
func (e *ErrMaxTurns) Resumable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resume != nil
}

// ResumeOption adjusts a resumed run.
type ResumeOption func(*resumeConfig)

type resumeConfig struct {
	maxTurns int
	input    []Item
}

// ResumeMaxTurns sets how many further turns the resumed run may take.
// Defaults to the original run's budget.
func ResumeMaxTurns(n int) ResumeOption {
	return func(c *resumeConfig) { c.maxTurns = n }
}

// ResumeInput appends items to the transcript before the resumed run's
// first turn, typically a user message answering the model's last request.
func ResumeInput(items ...Item) ResumeOption {
	return func(c *resumeConfig) { c.input = append(c.input, items...) }
}

// ErrHTTP is a transport-level failure a Model implementation may return.
// The retry middleware inspects Status and RetryAfter to decide whether
// and when to try again.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
