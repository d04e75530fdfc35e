package relay

// Usage accumulates model resource consumption across the turns of a run.
// Counters are monotonically non-decreasing: they survive hand-offs and
// resume, and are never reset mid-run.
type Usage struct {
	// Requests is the number of model invocations.
	Requests int `json:"requests"`
	// InputTokens counts prompt tokens, including the cached portion.
	InputTokens int `json:"input_tokens"`
	// CachedInputTokens counts prompt tokens served from provider cache.
	CachedInputTokens int `json:"cached_input_tokens,omitempty"`
	// OutputTokens counts completion tokens, including reasoning tokens.
	OutputTokens int `json:"output_tokens"`
	// ReasoningTokens counts tokens spent on hidden reasoning.
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	// TotalTokens is input plus output.
	TotalTokens int `json:"total_tokens"`
}

// Add folds another usage record into u.
func (u *Usage) Add(o Usage) {
	u.Requests += o.Requests
	u.InputTokens += o.InputTokens
	u.CachedInputTokens += o.CachedInputTokens
	u.OutputTokens += o.OutputTokens
	u.ReasoningTokens += o.ReasoningTokens
	u.TotalTokens += o.TotalTokens
}
