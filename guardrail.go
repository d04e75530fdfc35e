package relay

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// GuardrailOutput is the verdict of one guardrail check. A triggered
// tripwire is a control-flow signal, not a data error: it aborts the run
// with a distinguishable terminal condition carrying OutputInfo.
type GuardrailOutput struct {
	// OutputInfo is an arbitrary payload for caller inspection: the
	// matched keyword, a classifier verdict, a nested run's result.
	OutputInfo any
	// TripwireTriggered aborts the run when true.
	TripwireTriggered bool
}

// InputGuardrail checks a run's original input before the first model
// call. Checks run sequentially in declaration order; the first tripwire
// wins and short-circuits the rest. A check may itself run a nested agent
// (the classifier pattern).
type InputGuardrail struct {
	Name  string
	Check func(ctx context.Context, rc *RunContext, agent *Agent, input []Item) (GuardrailOutput, error)
}

// OutputGuardrail checks the candidate final output after the terminating
// turn, before the result is produced.
type OutputGuardrail struct {
	Name  string
	Check func(ctx context.Context, rc *RunContext, agent *Agent, output any) (GuardrailOutput, error)
}

// InputGuardrailResult pairs a guardrail with its verdict.
type InputGuardrailResult struct {
	Guardrail InputGuardrail
	Output    GuardrailOutput
}

// OutputGuardrailResult pairs a guardrail with its verdict and the output
// it judged.
type OutputGuardrailResult struct {
	Guardrail   OutputGuardrail
	Agent       *Agent
	AgentOutput any
	Output      GuardrailOutput
}

// --- built-in guardrails ---

// zeroWidthReplacer strips characters commonly used to smuggle text past
// keyword matching.
var zeroWidthReplacer = strings.NewReplacer(
	"\u200B", "", // zero-width space
	"\u200C", "", // zero-width non-joiner
	"\u200D", "", // zero-width joiner
	"\uFEFF", "", // zero-width no-break space
)

// normalizeForMatching folds input to a canonical lowercase form: NFKC
// normalization, zero-width stripping, lowercasing.
func normalizeForMatching(s string) string {
	s = norm.NFKC.String(s)
	s = zeroWidthReplacer.Replace(s)
	return strings.ToLower(s)
}

// flattenInputText joins the message text of input items for matching.
func flattenInputText(input []Item) string {
	var b strings.Builder
	for _, it := range input {
		switch m := it.(type) {
		case UserMessage:
			b.WriteString(m.Content)
			b.WriteByte('\n')
		case AssistantMessage:
			b.WriteString(m.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// KeywordGuardrail trips when the input contains any of the given
// keywords. Matching is case-insensitive over NFKC-normalized text with
// zero-width characters stripped, so homoglyph spacing tricks do not
// bypass it. OutputInfo is the matched keyword.
func KeywordGuardrail(name string, keywords ...string) InputGuardrail {
	normalized := make([]string, len(keywords))
	for i, kw := range keywords {
		normalized[i] = normalizeForMatching(kw)
	}
	return InputGuardrail{
		Name: name,
		Check: func(_ context.Context, _ *RunContext, _ *Agent, input []Item) (GuardrailOutput, error) {
			text := normalizeForMatching(flattenInputText(input))
			for i, kw := range normalized {
				if kw != "" && strings.Contains(text, kw) {
					return GuardrailOutput{OutputInfo: keywords[i], TripwireTriggered: true}, nil
				}
			}
			return GuardrailOutput{}, nil
		},
	}
}

// LengthGuardrail trips when the input text exceeds maxRunes. OutputInfo
// is the observed rune count.
func LengthGuardrail(name string, maxRunes int) InputGuardrail {
	return InputGuardrail{
		Name: name,
		Check: func(_ context.Context, _ *RunContext, _ *Agent, input []Item) (GuardrailOutput, error) {
			n := utf8.RuneCountInString(flattenInputText(input))
			if n > maxRunes {
				return GuardrailOutput{OutputInfo: n, TripwireTriggered: true}, nil
			}
			return GuardrailOutput{}, nil
		},
	}
}
