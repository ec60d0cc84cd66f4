// Package recognition implements the Recognition Adapter of the interview call.
//
// An [Adapter] wraps a [speech.Recognizer] and turns its result batches into
// flat [Event] values on a single channel: the latest interim text for the
// live echo, the concatenated final text of a batch, recognition error codes,
// and the platform ending a session on its own.
//
// The adapter is capability-gated. Built without a recognizer it reports
// itself unavailable and Start and Stop do nothing. Start and Stop are
// idempotent and never fail; platform errors surface only as events.
package recognition

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/mockinterview/pkg/speech"
)

// eventBuffer is the capacity of the Events channel.
const eventBuffer = 32

// EventKind enumerates adapter events.
type EventKind int

const (
	// EventInterim carries the latest non-final text.
	EventInterim EventKind = iota

	// EventFinal carries the newly finalized text of one result batch.
	EventFinal

	// EventError carries a recognition error code.
	EventError

	// EventEnded reports that the platform ended the session without Stop.
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	case EventEnded:
		return "ended"
	}
	return "unknown"
}

// Event is one adapter notification. Gen identifies the session it belongs
// to; see [Adapter.Current].
type Event struct {
	Kind EventKind
	Text string
	Code speech.ErrorCode
	Gen  uint64
}

// Adapter is the Recognition Adapter. All methods are safe for concurrent use.
type Adapter struct {
	rec       speech.Recognizer
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu     sync.Mutex
	cfg    speech.ListenConfig
	gen    uint64
	active bool
	cancel context.CancelFunc
}

// New returns an Adapter for rec. A nil rec yields an unavailable adapter.
// Interim results are always requested.
func New(rec speech.Recognizer, language string) *Adapter {
	return &Adapter{
		rec:    rec,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cfg:    speech.ListenConfig{Language: language, Interim: true},
	}
}

// Available reports whether a recognizer is present.
func (a *Adapter) Available() bool { return a.rec != nil }

// Events returns the channel all sessions report on. It is never closed.
func (a *Adapter) Events() <-chan Event { return a.events }

// SetLanguage changes the language used by the next session.
func (a *Adapter) SetLanguage(language string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Language = language
}

// Active reports whether a session is running.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Current reports whether ev belongs to the latest session and that session
// has not been stopped. [EventEnded] of the latest session is always current.
// Events of stopped sessions may still be buffered and should be dropped.
func (a *Adapter) Current(ev Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ev.Gen == a.gen && (a.active || ev.Kind == EventEnded)
}

// Start begins a recognition session bound to ctx. Starting while a session
// is running, after Close, or without a recognizer does nothing.
func (a *Adapter) Start(ctx context.Context) {
	if a.rec == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.done:
		return
	default:
	}
	if a.active {
		return
	}
	a.gen++
	sctx, cancel := context.WithCancel(ctx)
	a.active = true
	a.cancel = cancel
	a.wg.Add(1)
	go a.run(sctx, a.gen, a.cfg)
}

// Stop ends the running session. Stopping while stopped does nothing.
// Stop does not wait for the session goroutine.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Adapter) stopLocked() {
	if !a.active {
		return
	}
	a.active = false
	a.cancel()
	a.cancel = nil
}

// Close stops the running session and waits for it to wind down. Events not
// yet delivered are dropped.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.stopLocked()
	a.closeOnce.Do(func() { close(a.done) })
	a.mu.Unlock()
	a.wg.Wait()
	return nil
}

// finish marks session gen as ended by the platform. It reports false when
// the session was already stopped or replaced.
func (a *Adapter) finish(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active || a.gen != gen {
		return false
	}
	a.stopLocked()
	return true
}

func (a *Adapter) run(ctx context.Context, gen uint64, cfg speech.ListenConfig) {
	defer a.wg.Done()

	results, err := a.rec.Listen(ctx, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, speech.ErrUnavailable) {
			slog.Debug("recognition: unavailable", "err", err)
			if a.finish(gen) {
				a.emit(ctx, Event{Kind: EventEnded, Gen: gen})
			}
			return
		}
		code := speech.Classify(err)
		slog.Debug("recognition: listen failed", "code", code, "err", err)
		a.emit(ctx, Event{Kind: EventError, Code: code, Gen: gen})
		if a.finish(gen) {
			a.emit(context.Background(), Event{Kind: EventEnded, Gen: gen})
		}
		return
	}

	for ev := range results {
		if ev.Err != nil {
			if ev.Err.Code.Benign() {
				slog.Debug("recognition: benign error", "code", ev.Err.Code, "err", ev.Err)
			} else {
				slog.Warn("recognition: error", "code", ev.Err.Code, "err", ev.Err)
			}
			a.emit(ctx, Event{Kind: EventError, Code: ev.Err.Code, Gen: gen})
			continue
		}
		final, interim := splitResults(ev.Results)
		switch {
		case final != "":
			a.emit(ctx, Event{Kind: EventFinal, Text: final, Gen: gen})
		case interim != "":
			a.emit(ctx, Event{Kind: EventInterim, Text: interim, Gen: gen})
		}
	}

	if a.finish(gen) {
		a.emit(context.Background(), Event{Kind: EventEnded, Gen: gen})
	}
}

// emit delivers ev unless ctx ends first. A session that ended on its own is
// reported with a background context so EventEnded is never lost.
func (a *Adapter) emit(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	select {
	case a.events <- ev:
	case <-ctx.Done():
	case <-a.done:
	}
}

// splitResults concatenates the final and the interim segments of a batch.
func splitResults(results []speech.Result) (final, interim string) {
	var f, i strings.Builder
	for _, r := range results {
		if r.IsFinal {
			f.WriteString(r.Text)
		} else {
			i.WriteString(r.Text)
		}
	}
	return strings.TrimSpace(f.String()), strings.TrimSpace(i.String())
}
