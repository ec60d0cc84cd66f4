package resilience

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/mockinterview/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over between backends when a
// session cannot be opened. A session that fails after it started is not
// moved to another backend; the recognition adapter restarts it instead, and
// the restart goes through the failover again.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]

	mu      sync.Mutex
	serving string
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an STTFallback preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// StartStream opens a session on the first healthy backend.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	h, name, err := executeNamed(ctx, f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	prev := f.serving
	f.serving = name
	f.mu.Unlock()
	if name != prev && prev != "" {
		slog.Info("resilience: recognition moved to another backend", "from", prev, "to", name)
	}
	return h, nil
}

// Serving returns the backend that opened the most recent session, or "" if
// none was opened yet.
func (f *STTFallback) Serving() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serving
}
