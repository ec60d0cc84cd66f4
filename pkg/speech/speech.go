// Package speech defines the platform capabilities for continuous speech
// recognition and speech synthesis used by the interview call.
//
// A [Recognizer] listens to the microphone until its context is cancelled and
// reports batches of interim and final results, or a [RecognitionError] with
// one of the platform error codes. A [Synthesizer] speaks one utterance at a
// time and reports start, character boundary, end, and error events.
//
// Both capabilities are optional on a host. Callers treat a nil
// implementation as "not available" rather than as an error.
package speech

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// ErrUnavailable is returned when a capability is not present on the host.
var ErrUnavailable = errors.New("speech: capability unavailable")

// ErrorCode is a recognition error reported by the platform.
type ErrorCode string

const (
	CodeAborted    ErrorCode = "aborted"
	CodeNoSpeech   ErrorCode = "no-speech"
	CodeNetwork    ErrorCode = "network"
	CodeNotAllowed ErrorCode = "not-allowed"
)

// Benign reports whether recognition may simply continue after the error.
// Only [CodeNotAllowed] is fatal to the feature.
func (c ErrorCode) Benign() bool {
	return c != CodeNotAllowed
}

// RecognitionError carries a platform error code and its cause.
type RecognitionError struct {
	Code ErrorCode
	Err  error
}

func (e *RecognitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("speech: recognition %s", e.Code)
	}
	return fmt.Sprintf("speech: recognition %s: %v", e.Code, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Classify maps an arbitrary recognition failure onto an error code.
// Context cancellation is aborted, permission failures are not-allowed,
// network and connection failures are network, anything else is aborted.
func Classify(err error) ErrorCode {
	var re *RecognitionError
	switch {
	case err == nil:
		return CodeAborted
	case errors.As(err, &re):
		return re.Code
	case errors.Is(err, media.ErrPermissionDenied):
		return CodeNotAllowed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeAborted
	case isNetwork(err):
		return CodeNetwork
	}
	return CodeAborted
}

func isNetwork(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}

// Result is one recognised segment.
type Result struct {
	Text    string
	IsFinal bool
}

// RecognitionEvent is one callback from the recognizer: either a batch of
// results or an error.
type RecognitionEvent struct {
	Results []Result
	Err     *RecognitionError
}

// ListenConfig configures a recognition session.
type ListenConfig struct {
	// Language is a BCP-47 tag such as "en-US".
	Language string

	// Interim enables delivery of non-final results.
	Interim bool
}

// Recognizer is the continuous speech-to-text capability.
type Recognizer interface {
	// Listen starts a session that runs until ctx is cancelled or the platform
	// ends it. The returned channel is closed when the session has ended; an
	// error event, if any, is sent before closing.
	Listen(ctx context.Context, cfg ListenConfig) (<-chan RecognitionEvent, error)
}

// Voice is one synthesis voice offered by the platform.
type Voice struct {
	ID       string
	Name     string
	Language string
	Default  bool
}

// Utterance is a piece of text to speak.
type Utterance struct {
	Text  string
	Voice *Voice
}

// PlaybackKind enumerates synthesizer callbacks.
type PlaybackKind int

const (
	PlaybackStart PlaybackKind = iota
	PlaybackBoundary
	PlaybackEnd
	PlaybackError
)

func (k PlaybackKind) String() string {
	switch k {
	case PlaybackStart:
		return "start"
	case PlaybackBoundary:
		return "boundary"
	case PlaybackEnd:
		return "end"
	case PlaybackError:
		return "error"
	}
	return "unknown"
}

// PlaybackEvent is one synthesizer callback. CharIndex is set for boundary
// events and counts characters (runes) of the utterance text, not bytes. Err
// is set for error events.
type PlaybackEvent struct {
	Kind      PlaybackKind
	CharIndex int
	Err       error
}

// Synthesizer is the text-to-speech capability.
type Synthesizer interface {
	// Voices lists the available voices.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak plays u. Cancelling ctx interrupts playback. The returned channel
	// delivers a start event, boundary events, and finally exactly one end or
	// error event before being closed.
	Speak(ctx context.Context, u Utterance) (<-chan PlaybackEvent, error)
}
