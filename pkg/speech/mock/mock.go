// Package mock provides test doubles for the speech capabilities.
//
// Recognizer hands out Session values that tests drive with Emit and End.
// Synthesizer hands out Playback values that tests drive with Start, Boundary,
// End and Fail, or completes every utterance on its own when AutoComplete is
// set.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockinterview/pkg/speech"
)

// Session is one mock recognition session.
type Session struct {
	Cfg speech.ListenConfig

	mu     sync.Mutex
	ch     chan speech.RecognitionEvent
	closed bool
}

// Emit delivers ev if the session is still open. It reports whether the event
// was delivered.
func (s *Session) Emit(ev speech.RecognitionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Interim emits a single interim result.
func (s *Session) Interim(text string) bool {
	return s.Emit(speech.RecognitionEvent{Results: []speech.Result{{Text: text}}})
}

// Final emits a batch of final results.
func (s *Session) Final(texts ...string) bool {
	ev := speech.RecognitionEvent{}
	for _, t := range texts {
		ev.Results = append(ev.Results, speech.Result{Text: t, IsFinal: true})
	}
	return s.Emit(ev)
}

// End ends the session from the platform side, optionally reporting an error
// code first.
func (s *Session) End(code speech.ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if code != "" {
		select {
		case s.ch <- speech.RecognitionEvent{Err: &speech.RecognitionError{Code: code}}:
		default:
		}
	}
	s.closed = true
	close(s.ch)
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Recognizer is a mock implementation of speech.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// ListenErr, if non-nil, is returned from Listen.
	ListenErr error

	Sessions []*Session
}

// Listen records a new session that stays open until ctx is cancelled or the
// test calls End.
func (r *Recognizer) Listen(ctx context.Context, cfg speech.ListenConfig) (<-chan speech.RecognitionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ListenErr != nil {
		return nil, r.ListenErr
	}
	s := &Session{Cfg: cfg, ch: make(chan speech.RecognitionEvent, 16)}
	r.Sessions = append(r.Sessions, s)
	go func() {
		<-ctx.Done()
		s.End("")
	}()
	return s.ch, nil
}

// Last returns the most recent session, or nil.
func (r *Recognizer) Last() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sessions) == 0 {
		return nil
	}
	return r.Sessions[len(r.Sessions)-1]
}

// ActiveCount returns the number of open sessions.
func (r *Recognizer) ActiveCount() int {
	r.mu.Lock()
	sessions := append([]*Session(nil), r.Sessions...)
	r.mu.Unlock()
	n := 0
	for _, s := range sessions {
		if s.Active() {
			n++
		}
	}
	return n
}

// ListenCount returns how many sessions were started.
func (r *Recognizer) ListenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sessions)
}

var _ speech.Recognizer = (*Recognizer)(nil)

// Playback is one mock utterance.
type Playback struct {
	Utterance speech.Utterance

	ctx    context.Context
	mu     sync.Mutex
	ch     chan speech.PlaybackEvent
	closed bool
}

func (p *Playback) send(ev speech.PlaybackEvent, last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
	}
	if last {
		p.closed = true
		close(p.ch)
	}
}

// Start emits the start event.
func (p *Playback) Start() { p.send(speech.PlaybackEvent{Kind: speech.PlaybackStart}, false) }

// Boundary emits a boundary event at charIndex.
func (p *Playback) Boundary(charIndex int) {
	p.send(speech.PlaybackEvent{Kind: speech.PlaybackBoundary, CharIndex: charIndex}, false)
}

// End emits the end event and closes the playback.
func (p *Playback) End() { p.send(speech.PlaybackEvent{Kind: speech.PlaybackEnd}, true) }

// Fail emits an error event and closes the playback.
func (p *Playback) Fail(err error) { p.send(speech.PlaybackEvent{Kind: speech.PlaybackError, Err: err}, true) }

// Done reports whether the playback has ended.
func (p *Playback) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Cancelled reports whether the caller cancelled the playback.
func (p *Playback) Cancelled() bool { return p.ctx.Err() != nil }

// Synthesizer is a mock implementation of speech.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// VoiceList is returned by Voices.
	VoiceList []speech.Voice

	// VoicesErr, if non-nil, is returned by Voices.
	VoicesErr error

	// SpeakErr, if non-nil, is returned by Speak.
	SpeakErr error

	// AutoComplete makes every utterance emit start and end immediately.
	AutoComplete bool

	Playbacks []*Playback
}

// Voices returns VoiceList.
func (s *Synthesizer) Voices(context.Context) ([]speech.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.VoiceList, s.VoicesErr
}

// Speak records the utterance and returns its event channel.
func (s *Synthesizer) Speak(ctx context.Context, u speech.Utterance) (<-chan speech.PlaybackEvent, error) {
	s.mu.Lock()
	if s.SpeakErr != nil {
		err := s.SpeakErr
		s.mu.Unlock()
		return nil, err
	}
	p := &Playback{Utterance: u, ctx: ctx, ch: make(chan speech.PlaybackEvent, 64)}
	s.Playbacks = append(s.Playbacks, p)
	auto := s.AutoComplete
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.Fail(ctx.Err())
	}()
	if auto {
		p.Start()
		p.End()
	}
	return p.ch, nil
}

// Last returns the most recent playback, or nil.
func (s *Synthesizer) Last() *Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Playbacks) == 0 {
		return nil
	}
	return s.Playbacks[len(s.Playbacks)-1]
}

// SpeakCount returns how many utterances were started.
func (s *Synthesizer) SpeakCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Playbacks)
}

// Texts returns the text of every utterance in order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Playbacks))
	for i, p := range s.Playbacks {
		out[i] = p.Utterance.Text
	}
	return out
}

// SetAutoComplete toggles AutoComplete under the lock.
func (s *Synthesizer) SetAutoComplete(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AutoComplete = v
}

var _ speech.Synthesizer = (*Synthesizer)(nil)
