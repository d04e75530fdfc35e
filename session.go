package relay

import (
	"context"
	"sync"
)

// Session is the persistent conversation log a run reads its prior
// history from and appends its new items to. The run loop treats it as an
// append-mostly log: items are never mutated in place, calls from one run
// are strictly sequential, and new items are added exactly once per run.
// Concurrent runs over the same session need serialization on the
// session side.
type Session interface {
	// Items returns stored items in chronological order. limit <= 0
	// returns everything; otherwise the latest limit items.
	Items(ctx context.Context, limit int) ([]Item, error)
	// AddItems appends items to the log.
	AddItems(ctx context.Context, items []Item) error
	// PopItem removes and returns the most recent item, or nil when the
	// log is empty.
	PopItem(ctx context.Context) (Item, error)
	// Clear removes all items.
	Clear(ctx context.Context) error
}

// MemorySession is a process-local Session for tests and short-lived
// conversations.
type MemorySession struct {
	mu    sync.Mutex
	items []Item
}

// NewMemorySession returns an empty in-memory session.
func NewMemorySession() *MemorySession {
	return &MemorySession{}
}

func (s *MemorySession) Items(_ context.Context, limit int) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return append([]Item(nil), items...), nil
}

func (s *MemorySession) AddItems(_ context.Context, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	return nil
}

func (s *MemorySession) PopItem(_ context.Context) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil, nil
	}
	it := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return it, nil
}

func (s *MemorySession) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

var _ Session = (*MemorySession)(nil)
