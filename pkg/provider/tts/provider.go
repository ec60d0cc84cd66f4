// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// streaming interface. SynthesizeStream accepts a channel of text fragments
// and returns a channel of raw PCM audio as it becomes available, so playback
// can start before the whole reply has been synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// Voice describes one synthesis voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is a BCP-47 tag such as "en-US". May be empty when the
	// provider does not report it.
	Language string

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from text and returns a
	// channel of 16-bit little-endian PCM in [Provider.Format].
	//
	// The audio channel is closed when all text has been synthesised, when
	// ctx is cancelled, or when the backend fails. Callers check ctx.Err() to
	// tell cancellation apart from provider errors and must drain the channel.
	SynthesizeStream(ctx context.Context, text <-chan string, voice Voice) (<-chan []byte, error)

	// ListVoices returns the voices currently offered by the backend.
	ListVoices(ctx context.Context) ([]Voice, error)

	// Format returns the PCM format produced by SynthesizeStream.
	Format() media.AudioFormat
}
