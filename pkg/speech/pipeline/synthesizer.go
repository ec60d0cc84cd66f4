package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/mockinterview/pkg/media"
	"github.com/MrWong99/mockinterview/pkg/provider/tts"
	"github.com/MrWong99/mockinterview/pkg/speech"
)

// ErrNoAudio is reported when the provider produced no audio for a sentence.
var ErrNoAudio = errors.New("pipeline: provider returned no audio")

// SynthesizerOption configures a [Synthesizer].
type SynthesizerOption func(*Synthesizer)

// WithDefaultVoice sets the voice used when an utterance names none.
func WithDefaultVoice(id string) SynthesizerOption {
	return func(s *Synthesizer) {
		s.defaultVoice = id
	}
}

// Synthesizer implements speech.Synthesizer with a tts.Provider and a
// media.Speaker.
type Synthesizer struct {
	provider     tts.Provider
	speaker      media.Speaker
	defaultVoice string
}

var _ speech.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer returns a Synthesizer that plays audio on speaker.
func NewSynthesizer(p tts.Provider, speaker media.Speaker, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{provider: p, speaker: speaker}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Voices lists the provider's voices. The configured default voice, or the
// first voice when none is configured, is marked as default.
func (s *Synthesizer) Voices(ctx context.Context) ([]speech.Voice, error) {
	list, err := s.provider.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list voices: %w", err)
	}
	voices := make([]speech.Voice, len(list))
	for i, v := range list {
		voices[i] = speech.Voice{
			ID:       v.ID,
			Name:     v.Name,
			Language: v.Language,
			Default:  v.ID == s.defaultVoice || (s.defaultVoice == "" && i == 0),
		}
	}
	return voices, nil
}

// Speak synthesises and plays u one sentence at a time.
func (s *Synthesizer) Speak(ctx context.Context, u speech.Utterance) (<-chan speech.PlaybackEvent, error) {
	voice := tts.Voice{ID: s.defaultVoice}
	if u.Voice != nil && u.Voice.ID != "" {
		voice = tts.Voice{ID: u.Voice.ID, Name: u.Voice.Name, Language: u.Voice.Language}
	}
	if voice.ID == "" {
		voices, err := s.provider.ListVoices(ctx)
		if err != nil {
			return nil, fmt.Errorf("pipeline: resolve voice: %w", err)
		}
		if len(voices) == 0 {
			return nil, fmt.Errorf("pipeline: resolve voice: %w", speech.ErrUnavailable)
		}
		voice = voices[0]
	}

	events := make(chan speech.PlaybackEvent, 64)
	go func() {
		defer close(events)
		if err := s.play(ctx, u.Text, voice, events); err != nil {
			events <- speech.PlaybackEvent{Kind: speech.PlaybackError, Err: err}
			return
		}
		events <- speech.PlaybackEvent{Kind: speech.PlaybackEnd}
	}()
	return events, nil
}

func (s *Synthesizer) play(ctx context.Context, text string, voice tts.Voice, events chan<- speech.PlaybackEvent) error {
	conv := &media.Converter{Target: s.speaker.Format()}
	from := s.provider.Format()
	started := false

	for _, sentence := range speech.Sentences(text) {
		fragments := make(chan string, 1)
		fragments <- sentence.Text
		close(fragments)

		audio, err := s.provider.SynthesizeStream(ctx, fragments, voice)
		if err != nil {
			return fmt.Errorf("pipeline: synthesize: %w", err)
		}

		played := 0
		for pcm := range audio {
			if !started {
				started = true
				events <- speech.PlaybackEvent{Kind: speech.PlaybackStart}
			}
			if played == 0 {
				events <- speech.PlaybackEvent{Kind: speech.PlaybackBoundary, CharIndex: sentence.Start}
			}
			out := conv.Convert(pcm, from)
			if err := s.speaker.Play(ctx, out); err != nil {
				drain(audio)
				return fmt.Errorf("pipeline: play: %w", err)
			}
			played += len(pcm)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if played == 0 {
			slog.Warn("pipeline: no audio for sentence", "voice", voice.ID, "chars", len(sentence.Text))
			return ErrNoAudio
		}
	}
	if !started {
		// Nothing speakable; still report a start so listeners see a
		// complete utterance.
		events <- speech.PlaybackEvent{Kind: speech.PlaybackStart}
	}
	return nil
}

func drain(ch <-chan []byte) {
	for range ch {
	}
}
