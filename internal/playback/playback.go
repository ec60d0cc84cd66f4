// Package playback implements the Speech Playback Engine of the interview
// call.
//
// An [Engine] speaks one reply at a time through a [speech.Synthesizer]. A new
// [Engine.Speak] cancels whatever is still playing. Platform callbacks are
// flattened into [Event] values on a single channel; boundary callbacks carry
// the sentence of the reply that contains the reported character offset, so
// captions advance line by line with the audio.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/mockinterview/pkg/speech"
)

// eventBuffer is the capacity of the Events channel.
const eventBuffer = 64

// DefaultPreferredVoice is matched against voice names when no preference is
// configured.
const DefaultPreferredVoice = "Samantha"

// ErrIncomplete is reported when the synthesizer closed its event stream
// without an end or error event.
var ErrIncomplete = errors.New("playback: utterance ended without completion")

// EventKind enumerates engine events.
type EventKind int

const (
	EventStart EventKind = iota
	EventBoundary
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventBoundary:
		return "boundary"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one engine notification for the utterance identified by ID.
// Caption is the sentence being spoken for start and boundary events.
type Event struct {
	Kind      EventKind
	ID        string
	Caption   string
	CharIndex int
	Err       error
}

// Option configures an [Engine].
type Option func(*Engine)

// WithPreferredVoice sets the voice name fragment to look for.
func WithPreferredVoice(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.preferred = name
		}
	}
}

// WithLanguage sets the language used when the preferred voice is missing.
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// Engine is the Speech Playback Engine. All methods are safe for concurrent
// use.
type Engine struct {
	synth     speech.Synthesizer
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu        sync.Mutex
	preferred string
	language  string
	voice     *speech.Voice
	curID     string
	active    bool
	cancel    context.CancelFunc
}

// New returns an Engine speaking through synth. With a nil synth every
// utterance ends immediately.
func New(synth speech.Synthesizer, opts ...Option) *Engine {
	e := &Engine{
		synth:     synth,
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
		preferred: DefaultPreferredVoice,
		language:  "en-US",
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Events returns the channel all utterances report on. It is never closed.
func (e *Engine) Events() <-chan Event { return e.events }

// SetVoicePreference changes the preferred voice name and language for the
// next utterance.
func (e *Engine) SetVoicePreference(name, lang string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name != "" {
		e.preferred = name
	}
	if lang != "" {
		e.language = lang
	}
	e.voice = nil
}

// Active reports whether an utterance is playing.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Current reports whether ev belongs to the latest utterance.
func (e *Engine) Current(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ev.ID != "" && ev.ID == e.curID
}

// Speak cancels any playing utterance and starts speaking text. It returns
// the ID events of this utterance carry.
func (e *Engine) Speak(ctx context.Context, text string) string {
	id := uuid.NewString()

	e.mu.Lock()
	e.cancelLocked()
	e.curID = id
	select {
	case <-e.done:
		e.mu.Unlock()
		return id
	default:
	}
	e.wg.Add(1)
	if e.synth == nil {
		e.mu.Unlock()
		go func() {
			defer e.wg.Done()
			e.emit(ctx, Event{Kind: EventEnd, ID: id})
		}()
		return id
	}
	uctx, cancel := context.WithCancel(ctx)
	e.active = true
	e.cancel = cancel
	e.mu.Unlock()

	go e.run(uctx, cancel, id, text)
	return id
}

// Cancel stops the playing utterance. Its remaining events are dropped.
// Cancelling with nothing playing does nothing.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	e.curID = ""
}

func (e *Engine) cancelLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.active = false
}

// Close cancels playback and waits for the utterance goroutine to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.cancelLocked()
	e.curID = ""
	e.closeOnce.Do(func() { close(e.done) })
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, id, text string) {
	defer e.wg.Done()
	defer cancel()

	voice := e.resolveVoice(ctx)
	ch, err := e.synth.Speak(ctx, speech.Utterance{Text: text, Voice: voice})
	if err != nil {
		e.finish(ctx, Event{Kind: EventError, ID: id, Err: err})
		return
	}

	sentences := speech.Sentences(text)
	for ev := range ch {
		switch ev.Kind {
		case speech.PlaybackStart:
			e.emit(ctx, Event{Kind: EventStart, ID: id, Caption: CaptionAt(sentences, text, 0)})
		case speech.PlaybackBoundary:
			e.emit(ctx, Event{
				Kind:      EventBoundary,
				ID:        id,
				CharIndex: ev.CharIndex,
				Caption:   CaptionAt(sentences, text, ev.CharIndex),
			})
		case speech.PlaybackEnd:
			e.finish(ctx, Event{Kind: EventEnd, ID: id})
			return
		case speech.PlaybackError:
			e.finish(ctx, Event{Kind: EventError, ID: id, Err: ev.Err})
			return
		}
	}
	e.finish(ctx, Event{Kind: EventError, ID: id, Err: ErrIncomplete})
}

// finish marks utterance ev.ID as no longer playing and delivers ev.
func (e *Engine) finish(ctx context.Context, ev Event) {
	e.mu.Lock()
	if e.curID == ev.ID {
		e.active = false
		e.cancel = nil
	}
	e.mu.Unlock()
	if ev.Kind == EventError && ctx.Err() == nil {
		slog.Warn("playback: utterance failed", "id", ev.ID, "err", ev.Err)
	}
	e.emit(ctx, ev)
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	select {
	case e.events <- ev:
	case <-ctx.Done():
	case <-e.done:
	}
}

// resolveVoice returns the cached voice choice, listing voices on first use.
// It returns nil for the platform default.
func (e *Engine) resolveVoice(ctx context.Context) *speech.Voice {
	e.mu.Lock()
	if e.voice != nil {
		v := e.voice
		e.mu.Unlock()
		return v
	}
	preferred, lang := e.preferred, e.language
	e.mu.Unlock()

	voices, err := e.synth.Voices(ctx)
	if err != nil {
		slog.Debug("playback: list voices failed, using platform default", "err", err)
		return nil
	}
	v := SelectVoice(voices, preferred, lang)
	if v != nil {
		e.mu.Lock()
		e.voice = v
		e.mu.Unlock()
		slog.Debug("playback: voice selected", "voice", v.Name, "language", v.Language)
	}
	return v
}

// SelectVoice picks the first voice whose name contains preferred, else the
// first voice speaking lang, else nil for the platform default. Matching is
// case-insensitive and treats "en_US" like "en-US".
func SelectVoice(voices []speech.Voice, preferred, lang string) *speech.Voice {
	if preferred != "" {
		p := strings.ToLower(preferred)
		for i := range voices {
			if strings.Contains(strings.ToLower(voices[i].Name), p) {
				return &voices[i]
			}
		}
	}
	if lang != "" {
		l := normalizeLang(lang)
		for i := range voices {
			if normalizeLang(voices[i].Language) == l {
				return &voices[i]
			}
		}
	}
	return nil
}

func normalizeLang(lang string) string {
	return strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
}

// CaptionAt returns the sentence of text whose span contains charIndex.
// Offsets before the first sentence select the first, offsets past the last
// select the last. sentences must come from [speech.Sentences] on text; a
// text without sentences is returned trimmed.
func CaptionAt(sentences []speech.Sentence, text string, charIndex int) string {
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	if charIndex < sentences[0].Start {
		return sentences[0].Text
	}
	for _, s := range sentences {
		if s.Contains(charIndex) {
			return s.Text
		}
	}
	return sentences[len(sentences)-1].Text
}

// Caption is [CaptionAt] for a text that has not been split yet.
func Caption(text string, charIndex int) string {
	return CaptionAt(speech.Sentences(text), text, charIndex)
}
