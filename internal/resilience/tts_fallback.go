package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/mockinterview/pkg/media"
	"github.com/MrWong99/mockinterview/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over between backends when a
// stream cannot be set up. Every backend must produce the primary's PCM
// format; fallbacks with a different format are rejected by AddFallback.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a TTSFallback preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend. It reports false and ignores p when
// p's format differs from the primary's.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) bool {
	if want := f.Format(); p.Format() != want {
		slog.Warn("resilience: tts fallback ignored, format mismatch",
			"provider", name, "format", p.Format(), "want", want)
		return false
	}
	f.group.AddFallback(name, p)
	return true
}

// SynthesizeStream starts synthesis on the first healthy backend. Only
// stream setup fails over; errors mid-stream end the audio channel.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}

// Format returns the primary's PCM format.
func (f *TTSFallback) Format() media.AudioFormat {
	return f.group.Primary().Format()
}
