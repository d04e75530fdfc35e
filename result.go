package relay

import (
	"encoding/json"
	"fmt"
)

// OutputType constrains the shape of an agent's final output. When set,
// the model is asked for output matching Schema, the final text is decoded
// against it, and decode failure is *ErrModelBehavior. Absent, the final
// output is the plain assistant text.
type OutputType struct {
	// Name labels the type in declarations and errors.
	Name string
	// Schema is the JSON schema the final output must satisfy.
	Schema json.RawMessage
	// Strict asks the provider to enforce the schema exactly. Reflected
	// types default to strict; hand-written schemas opt in.
	Strict bool

	decode func(text string) (any, error)
}

// OutputTypeFor derives an OutputType from a Go struct. The final output
// decodes into T; FinalOutputAs[T] recovers the typed value.
func OutputTypeFor[T any](name string) *OutputType {
	var zero T
	schema, err := reflectSchema(&zero)
	if err != nil {
		schema = emptyObjectSchema
	}
	return &OutputType{
		Name:   name,
		Schema: schema,
		Strict: true,
		decode: func(text string) (any, error) {
			var out T
			if err := json.Unmarshal([]byte(text), &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

// RawOutputType builds an OutputType from a hand-written schema. The
// final output decodes into generic JSON values.
func RawOutputType(name string, schema json.RawMessage) *OutputType {
	return &OutputType{
		Name:   name,
		Schema: schema,
		decode: func(text string) (any, error) {
			var out any
			if err := json.Unmarshal([]byte(text), &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

func (ot *OutputType) parse(text string) (any, error) {
	if ot.decode == nil {
		return text, nil
	}
	return ot.decode(text)
}

// RunResult is the terminal record of a successful run.
type RunResult struct {
	// Input is the original input of this run, normalized to items.
	// Session history read at run start is not included.
	Input []Item
	// NewItems are the items produced by this run in order.
	NewItems []Item
	// FinalOutput is the terminating agent's output: a plain string, or
	// the decoded value of its output type.
	FinalOutput any
	// Usage is the run's cumulative resource consumption.
	Usage Usage
	// LastAgent is the agent that produced the final output. Hand-offs
	// may make this differ from the starting agent; keep it around when
	// chaining conversational runs.
	LastAgent *Agent
	// InputGuardrailResults holds the verdicts of input guardrails that ran.
	InputGuardrailResults []InputGuardrailResult
	// OutputGuardrailResults holds the verdicts of output guardrails that ran.
	OutputGuardrailResults []OutputGuardrailResult
}

// FinalOutputText renders the final output as text: pass-through for
// strings, JSON for structured outputs.
func (r *RunResult) FinalOutputText() string {
	switch v := r.FinalOutput.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// History returns input plus new items: the transcript to feed a
// follow-up run with Items(...).
func (r *RunResult) History() []Item {
	out := make([]Item, 0, len(r.Input)+len(r.NewItems))
	out = append(out, r.Input...)
	out = append(out, r.NewItems...)
	return out
}

// FinalOutputAs recovers the typed final output of a run whose agent
// declared OutputTypeFor[T].
func FinalOutputAs[T any](r *RunResult) (T, error) {
	out, ok := r.FinalOutput.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("final output is %T, not %T", r.FinalOutput, zero)
	}
	return out, nil
}
