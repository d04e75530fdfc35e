package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// Computer is the external capability a ComputerTool drives: a controlled
// desktop, browser, or VM that can perform pointer and keyboard actions
// and report its screen. Implementations live outside this module.
type Computer interface {
	// Environment names the controlled surface: "linux", "mac",
	// "windows", or "browser".
	Environment() string
	// Dimensions is the screen size in pixels.
	Dimensions() (width, height int)
	// Screenshot captures the current screen as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	Click(ctx context.Context, x, y int, button string) error
	DoubleClick(ctx context.Context, x, y int) error
	Scroll(ctx context.Context, x, y, scrollX, scrollY int) error
	Type(ctx context.Context, text string) error
	Keypress(ctx context.Context, keys []string) error
	Move(ctx context.Context, x, y int) error
	Drag(ctx context.Context, path [][2]int) error
	Wait(ctx context.Context) error
}

// ComputerAction is the decoded payload of a computer tool call.
type ComputerAction struct {
	// Type is one of: screenshot, click, double_click, scroll, type,
	// keypress, move, drag, wait.
	Type    string   `json:"type"`
	X       int      `json:"x,omitempty"`
	Y       int      `json:"y,omitempty"`
	Button  string   `json:"button,omitempty"`
	ScrollX int      `json:"scroll_x,omitempty"`
	ScrollY int      `json:"scroll_y,omitempty"`
	Text    string   `json:"text,omitempty"`
	Keys    []string `json:"keys,omitempty"`
	Path    [][2]int `json:"path,omitempty"`
}

// ScreenshotStore keeps screenshots content-addressed by their SHA-256
// digest. The tool-output item for a computer action carries the returned
// reference rather than the image bytes.
type ScreenshotStore interface {
	Put(ctx context.Context, png []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// memoryScreenshotStore is the default in-process ScreenshotStore.
type memoryScreenshotStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryScreenshotStore returns an in-process content-addressed store.
func NewMemoryScreenshotStore() ScreenshotStore {
	return &memoryScreenshotStore{data: make(map[string][]byte)}
}

func (s *memoryScreenshotStore) Put(_ context.Context, png []byte) (string, error) {
	sum := sha256.Sum256(png)
	ref := "sha256:" + hex.EncodeToString(sum[:])
	s.mu.Lock()
	s.data[ref] = append([]byte(nil), png...)
	s.mu.Unlock()
	return ref, nil
}

func (s *memoryScreenshotStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	png, ok := s.data[ref]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("screenshot %s not found", ref)
	}
	return png, nil
}

// computerActionSchema describes the action payload a model sends to a
// computer tool. Hand-written: the action is a discriminated union, which
// reflection cannot express.
var computerActionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["screenshot", "click", "double_click", "scroll", "type", "keypress", "move", "drag", "wait"]},
    "x": {"type": "integer"},
    "y": {"type": "integer"},
    "button": {"type": "string"},
    "scroll_x": {"type": "integer"},
    "scroll_y": {"type": "integer"},
    "text": {"type": "string"},
    "keys": {"type": "array", "items": {"type": "string"}},
    "path": {"type": "array", "items": {"type": "array", "items": {"type": "integer"}}}
  },
  "required": ["type"]
}`)

// ComputerTool exposes a Computer to an agent. Each call performs one
// action, captures the resulting screen, and records a content-addressed
// screenshot reference as the tool output.
type ComputerTool struct {
	name     string
	computer Computer
	store    ScreenshotStore
}

// ComputerToolOption configures a ComputerTool.
type ComputerToolOption func(*ComputerTool)

// WithComputerToolName overrides the default tool name "computer_use".
func WithComputerToolName(name string) ComputerToolOption {
	return func(t *ComputerTool) { t.name = name }
}

// WithScreenshotStore replaces the in-memory screenshot store.
func WithScreenshotStore(s ScreenshotStore) ComputerToolOption {
	return func(t *ComputerTool) { t.store = s }
}

// NewComputerTool wraps a Computer as an agent tool.
func NewComputerTool(c Computer, opts ...ComputerToolOption) *ComputerTool {
	t := &ComputerTool{
		name:     "computer_use",
		computer: c,
		store:    NewMemoryScreenshotStore(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *ComputerTool) Name() string { return t.name }

func (t *ComputerTool) Description() string {
	w, h := t.computer.Dimensions()
	return fmt.Sprintf("Control a %s screen (%dx%d). Perform one action per call; every call returns a screenshot reference.", t.computer.Environment(), w, h)
}

func (t *ComputerTool) ParamsSchema() json.RawMessage { return computerActionSchema }

// Store exposes the screenshot store so callers can fetch captured images
// by the references found in tool-output items.
func (t *ComputerTool) Store() ScreenshotStore { return t.store }

// perform executes one decoded action. Unknown action types are the
// model's fault, not the integrator's.
func (t *ComputerTool) perform(ctx context.Context, action ComputerAction) error {
	switch action.Type {
	case "screenshot":
		return nil
	case "click":
		button := action.Button
		if button == "" {
			button = "left"
		}
		return t.computer.Click(ctx, action.X, action.Y, button)
	case "double_click":
		return t.computer.DoubleClick(ctx, action.X, action.Y)
	case "scroll":
		return t.computer.Scroll(ctx, action.X, action.Y, action.ScrollX, action.ScrollY)
	case "type":
		return t.computer.Type(ctx, action.Text)
	case "keypress":
		return t.computer.Keypress(ctx, action.Keys)
	case "move":
		return t.computer.Move(ctx, action.X, action.Y)
	case "drag":
		return t.computer.Drag(ctx, action.Path)
	case "wait":
		return t.computer.Wait(ctx)
	default:
		return &ErrModelBehavior{Message: fmt.Sprintf("unknown computer action %q", action.Type)}
	}
}
