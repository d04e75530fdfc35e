// Package shell provides command-execution tools for relay agents.
// Commands run under sh -c in a fixed working directory with a timeout
// and a small safety blocklist. Failures are reported back to the model
// as tool output rather than aborting the run, so agents can read the
// error and retry.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/nevindra/relay"
)

const (
	defaultTimeout = 30 * time.Second
	maxTimeout     = 300 * time.Second
	maxOutputBytes = 4000
	maxStreamLines = 100
)

// blocked rejects obviously destructive commands before execution.
var blocked = []string{"rm -rf /", "sudo ", "mkfs", "> /dev/", "dd if="}

// RunInput is the argument shape for the shell tools.
type RunInput struct {
	Command string `json:"command" jsonschema:"description=Shell command to execute"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds; default 30"`
}

type runner struct {
	workdir   string
	timeout   time.Duration
	maxOutput int
}

// Option configures the shell tools.
type Option func(*runner)

// WithTimeout sets the default per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *runner) { r.timeout = d }
}

// WithMaxOutput caps the combined output length in bytes.
func WithMaxOutput(n int) Option {
	return func(r *runner) { r.maxOutput = n }
}

func newRunner(workdir string, opts []Option) *runner {
	r := &runner{workdir: workdir, timeout: defaultTimeout, maxOutput: maxOutputBytes}
	for _, o := range opts {
		o(r)
	}
	return r
}

// New returns a tool named shell_exec that runs a command to completion
// and reports its combined output.
func New(workdir string, opts ...Option) *relay.FunctionTool {
	r := newRunner(workdir, opts)
	return relay.NewFunctionTool("shell_exec",
		"Execute a shell command in the workspace directory. Returns stdout + stderr. Use for running scripts, checking files, or system tasks.",
		func(ctx context.Context, _ *relay.RunContext, in RunInput) (any, error) {
			return r.run(ctx, in), nil
		})
}

// NewStream returns a streaming tool named shell_stream that runs a
// command and emits each stdout line as a progress notification while
// it executes. The exit summary becomes the tool result.
func NewStream(workdir string, opts ...Option) *relay.StreamingTool {
	r := newRunner(workdir, opts)
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to execute"},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds; default 30"},
		},
		"required":             []string{"command"},
		"additionalProperties": false,
	})
	return relay.NewStreamingTool("shell_stream",
		"Execute a shell command and stream its output line by line while it runs. Returns the exit summary.",
		schema, r.runStream)
}

// checkCommand validates a command before execution. A non-empty return
// is the model-facing rejection.
func checkCommand(command string) string {
	if command == "" {
		return "error: command is required"
	}
	lower := strings.ToLower(command)
	for _, b := range blocked {
		if strings.Contains(lower, b) {
			return "command blocked for safety: " + b
		}
	}
	return ""
}

func (r *runner) effectiveTimeout(in RunInput) time.Duration {
	timeout := r.timeout
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	return timeout
}

// run executes the command to completion. Failures are folded into the
// returned output.
func (r *runner) run(ctx context.Context, in RunInput) string {
	if msg := checkCommand(in.Command); msg != "" {
		return msg
	}

	timeout := r.effectiveTimeout(in)
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", in.Command)
	cmd.Dir = r.workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > r.maxOutput {
		output = output[:r.maxOutput] + "\n... (truncated)"
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return appendLine(output, fmt.Sprintf("error: command timed out after %s", timeout))
		}
		return appendLine(output, "exit: "+err.Error())
	}
	if output == "" {
		return "(no output)"
	}
	return output
}

// runStream executes the command, forwarding stdout lines as
// notifications. The terminal carries the exit summary plus any stderr.
func (r *runner) runStream(ctx context.Context, _ *relay.RunContext, args json.RawMessage, out chan<- relay.ToolStreamItem) error {
	var in RunInput
	if err := json.Unmarshal(args, &in); err != nil {
		return relay.EmitToolStream(ctx, out, relay.Terminal("error: invalid arguments: "+err.Error()))
	}
	if msg := checkCommand(in.Command); msg != "" {
		return relay.EmitToolStream(ctx, out, relay.Terminal(msg))
	}

	timeout := r.effectiveTimeout(in)
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", in.Command)
	cmd.Dir = r.workdir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return relay.EmitToolStream(ctx, out, relay.Terminal("error: "+err.Error()))
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return relay.EmitToolStream(ctx, out, relay.Terminal("error: "+err.Error()))
	}

	emitted := 0
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, r.maxOutput), r.maxOutput)
	for scanner.Scan() {
		if emitted >= maxStreamLines {
			continue // keep draining, stop forwarding
		}
		if err := relay.EmitToolStream(ctx, out, relay.Notification(scanner.Text())); err != nil {
			_ = cmd.Wait()
			return err
		}
		emitted++
	}
	_, _ = io.Copy(io.Discard, stdout) // unblock the pipe if the scanner stopped early

	err = cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	summary := fmt.Sprintf("command finished, %d lines of output", emitted)
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			summary = fmt.Sprintf("error: command timed out after %s", timeout)
		} else {
			summary = "exit: " + err.Error()
		}
	}
	if stderr.Len() > 0 {
		tail := stderr.String()
		if len(tail) > r.maxOutput {
			tail = tail[:r.maxOutput] + "\n... (truncated)"
		}
		summary += "\n--- stderr ---\n" + tail
	}
	return relay.EmitToolStream(ctx, out, relay.Terminal(summary))
}

func appendLine(output, line string) string {
	if output == "" {
		return line
	}
	return output + "\n" + line
}
