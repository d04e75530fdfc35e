package relay

// RunState is the inspectable snapshot carried by ErrMaxTurns: where the
// run stood when the budget ran out. Callers can examine it to decide
// whether to resume, surface the partial transcript, or abandon the run.
// The snapshot's item slices are copies; the RunContext is the live one,
// shared with a later Resume.
type RunState struct {
	// Agent is the agent that was active when the run stopped.
	Agent *Agent
	// Input is the run's original input, normalized to items.
	Input []Item
	// Items are the items generated so far, in order.
	Items []Item
	// History is the model-facing transcript at the moment the run
	// stopped. It differs from Input plus Items when a hand-off input
	// filter restructured it.
	History []Item
	// Turn is the number of completed turns.
	Turn int
	// MaxTurns is the exhausted budget cap.
	MaxTurns int
	// Context is the run's live context, including usage accumulated so
	// far. A resumed run continues with this same value.
	Context *RunContext
	// Responses are the raw model responses of completed turns.
	Responses []*ModelResponse
}
