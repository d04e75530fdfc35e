package relay

// Input is the starting input of a run: plain text or a prepared item
// list. The two forms normalize to the same item sequence before turn one.
type Input interface {
	runItems() []Item
}

type inputText string

type inputItems []Item

// Text wraps a plain string as run input. It becomes a single UserMessage.
func Text(s string) Input { return inputText(s) }

// Items wraps prepared conversation items as run input, typically the
// History() of a previous result when chaining runs.
func Items(items ...Item) Input { return inputItems(items) }

func (t inputText) runItems() []Item {
	return []Item{UserMessage{Content: string(t)}}
}

func (it inputItems) runItems() []Item {
	return append([]Item(nil), it...)
}
