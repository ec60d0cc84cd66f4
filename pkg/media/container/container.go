// Package container encodes captured PCM into uploadable audio containers.
//
// A [Writer] is created per recording for one MIME type. Every encoded piece
// it produces is written to the sink as a separate Write call, so a sink that
// keeps each call as a chunk observes the same chunk boundaries a browser
// media recorder would deliver. Close flushes whatever the encoder still holds.
package container

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// Supported MIME types.
const (
	MIMEOggOpus = "audio/ogg;codecs=opus"
	MIMEWAV     = "audio/wav"
)

// Fallback is used when none of the preferred types is supported.
const Fallback = MIMEWAV

// ErrUnsupported is returned by [New] for an unknown MIME type.
var ErrUnsupported = errors.New("container: unsupported mime type")

// Writer encodes PCM frames into a container.
type Writer interface {
	// Write encodes one PCM frame in the format given to [New].
	Write(pcm []byte) error

	// Close flushes buffered audio to the sink. Calling Close more than once
	// is safe.
	Close() error

	// MIMEType returns the container type produced.
	MIMEType() string
}

// Finalizer is implemented by writers whose output needs a fix-up pass once
// the whole recording has been assembled.
type Finalizer interface {
	Finalize(blob []byte) []byte
}

// Supported reports whether mime can be produced by [New]. Parameters and
// whitespace are compared loosely, so "audio/ogg; codecs=opus" matches.
func Supported(mime string) bool {
	switch normalize(mime) {
	case MIMEOggOpus, MIMEWAV:
		return true
	}
	return false
}

// Select returns the first supported entry of prefs, or [Fallback].
func Select(prefs []string) string {
	for _, p := range prefs {
		if Supported(p) {
			return normalize(p)
		}
	}
	return Fallback
}

// Extension returns the conventional file extension for mime.
func Extension(mime string) string {
	switch normalize(mime) {
	case MIMEOggOpus:
		return ".ogg"
	case MIMEWAV:
		return ".wav"
	}
	return ".bin"
}

// New creates a Writer for mime that emits encoded chunks to sink.
func New(mime string, f media.AudioFormat, sink io.Writer) (Writer, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("container: invalid audio format %+v", f)
	}
	switch normalize(mime) {
	case MIMEOggOpus:
		return newOggOpus(f, sink)
	case MIMEWAV:
		return newWAV(f, sink), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, mime)
}

func normalize(mime string) string {
	return strings.ToLower(strings.ReplaceAll(mime, " ", ""))
}
