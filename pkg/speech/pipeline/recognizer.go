// Package pipeline implements the speech capabilities on top of streaming
// STT and TTS providers.
//
// [Recognizer] taps the microphone track of the live call stream and feeds it
// to an stt.Provider session. [Synthesizer] speaks replies sentence by sentence
// through a tts.Provider and a media.Speaker, reporting a boundary event at
// the start of every sentence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/mockinterview/pkg/media"
	"github.com/MrWong99/mockinterview/pkg/provider/stt"
	"github.com/MrWong99/mockinterview/pkg/speech"
)

// AudioSource yields the microphone track recognition should listen to.
type AudioSource interface {
	AudioTrack() (media.Track, error)
}

// AudioSourceFunc adapts a function to [AudioSource].
type AudioSourceFunc func() (media.Track, error)

func (f AudioSourceFunc) AudioTrack() (media.Track, error) { return f() }

// RecognizerOption configures a [Recognizer].
type RecognizerOption func(*Recognizer)

// WithKeywords boosts domain vocabulary such as the interview topic or the
// company name.
func WithKeywords(kw ...stt.KeywordBoost) RecognizerOption {
	return func(r *Recognizer) {
		r.keywords = append(r.keywords, kw...)
	}
}

// Recognizer implements speech.Recognizer with an stt.Provider.
type Recognizer struct {
	provider stt.Provider
	source   AudioSource
	keywords []stt.KeywordBoost
}

var _ speech.Recognizer = (*Recognizer)(nil)

// NewRecognizer returns a Recognizer that transcribes audio from source.
func NewRecognizer(p stt.Provider, source AudioSource, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{provider: p, source: source}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Listen starts a recognition session. Failing to reach the microphone or the
// provider is reported as a *speech.RecognitionError.
func (r *Recognizer) Listen(ctx context.Context, cfg speech.ListenConfig) (<-chan speech.RecognitionEvent, error) {
	track, err := r.source.AudioTrack()
	if err != nil {
		return nil, &speech.RecognitionError{Code: speech.Classify(err), Err: err}
	}
	if track == nil || !track.Live() {
		return nil, &speech.RecognitionError{Code: speech.CodeAborted, Err: media.ErrDeviceUnavailable}
	}

	format := track.Format()
	sess, err := r.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Language:   cfg.Language,
		Keywords:   r.keywords,
	})
	if err != nil {
		code := speech.Classify(err)
		if code == speech.CodeAborted && ctx.Err() == nil {
			code = speech.CodeNetwork
		}
		return nil, &speech.RecognitionError{Code: code, Err: fmt.Errorf("pipeline: start stream: %w", err)}
	}

	frames, unsubscribe := track.Subscribe()
	events := make(chan speech.RecognitionEvent, 16)
	go r.pump(ctx, frames, unsubscribe, sess)
	go r.collect(ctx, sess, cfg, events)
	return events, nil
}

// pump forwards microphone frames to the provider until the session, the
// track, or ctx ends.
func (r *Recognizer) pump(ctx context.Context, frames <-chan []byte, unsubscribe func(), sess stt.SessionHandle) {
	defer unsubscribe()
	defer sess.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case pcm, ok := <-frames:
			if !ok {
				slog.Debug("pipeline: microphone track ended, closing recognition session")
				return
			}
			if err := sess.SendAudio(pcm); err != nil {
				return
			}
		}
	}
}

// collect merges the provider's partial and final transcripts into
// recognition events and reports how the session ended.
func (r *Recognizer) collect(ctx context.Context, sess stt.SessionHandle, cfg speech.ListenConfig, events chan<- speech.RecognitionEvent) {
	defer close(events)

	partials, finals := sess.Partials(), sess.Finals()
	for partials != nil || finals != nil {
		var ev speech.RecognitionEvent
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if !cfg.Interim || t.Text == "" {
				continue
			}
			ev.Results = []speech.Result{{Text: t.Text}}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if t.Text == "" {
				continue
			}
			ev.Results = []speech.Result{{Text: t.Text, IsFinal: true}}
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}

	err := sess.Err()
	if err == nil || ctx.Err() != nil {
		return
	}
	code := speech.Classify(err)
	if code == speech.CodeAborted {
		// A provider session that dies on its own lost its connection.
		code = speech.CodeNetwork
	}
	var re *speech.RecognitionError
	if errors.As(err, &re) {
		code = re.Code
	}
	events <- speech.RecognitionEvent{Err: &speech.RecognitionError{Code: code, Err: err}}
}
