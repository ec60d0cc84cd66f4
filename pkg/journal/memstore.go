package journal

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store]. The zero value is ready to use.
type MemStore struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Store = (*MemStore)(nil)

// Append implements [Store].
func (m *MemStore) Append(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// List implements [Store].
func (m *MemStore) List(_ context.Context, sessionID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Entry{}
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int { return a.Seq - b.Seq })
	return out, nil
}

// Search implements [Store] with a case-insensitive substring match.
func (m *MemStore) Search(_ context.Context, query string, opts SearchOpts) ([]Entry, error) {
	q := strings.ToLower(query)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Entry{}
	for _, e := range m.entries {
		switch {
		case opts.SessionID != "" && e.SessionID != opts.SessionID:
			continue
		case opts.Role != "" && e.Role != opts.Role:
			continue
		case !opts.After.IsZero() && !e.Timestamp.After(opts.After):
			continue
		case !strings.Contains(strings.ToLower(e.Content), q):
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
