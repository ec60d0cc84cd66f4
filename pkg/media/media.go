// Package media defines the platform capability for camera and microphone
// access used by the interview call.
//
// A [Devices] backend hands out a [Stream] of live [Track] values. Streams are
// owned by whoever opened them: consumers may subscribe to a track's frames but
// only the owner calls [Stream.Stop]. A [Preview] is the visible self-view a
// video track can be attached to, and a [Speaker] plays synthesized audio.
//
// Implementations must be safe for concurrent use.
package media

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned by [Devices.Open] when the user or the
	// operating system refuses access to a requested device.
	ErrPermissionDenied = errors.New("media: permission denied")

	// ErrDeviceUnavailable is returned by [Devices.Open] when a requested device
	// does not exist or cannot be opened.
	ErrDeviceUnavailable = errors.New("media: device unavailable")
)

// Kind distinguishes audio tracks from video tracks.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Constraints selects which devices [Devices.Open] should capture from.
type Constraints struct {
	Audio bool
	Video bool
}

// AudioFormat describes raw PCM produced by an audio track or consumed by a
// [Speaker]. Samples are signed 16-bit little-endian, interleaved.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of f.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Track is one live capture source inside a [Stream].
type Track interface {
	// ID is unique within the owning stream.
	ID() string

	// Kind reports whether this is an audio or video track.
	Kind() Kind

	// Format is the PCM format of frames emitted by an audio track. It is the
	// zero value for video tracks.
	Format() AudioFormat

	// Subscribe returns a channel of captured frames (PCM for audio, encoded
	// images for video) and a cancel function. The channel is closed when the
	// cancel function is called or the track stops. Slow subscribers drop
	// frames rather than stall capture.
	Subscribe() (<-chan []byte, func())

	// Live reports whether the track is still capturing.
	Live() bool
}

// Stream is a set of tracks acquired together by one [Devices.Open] call.
type Stream interface {
	// ID identifies the stream for logging.
	ID() string

	// Tracks returns all tracks of the stream.
	Tracks() []Track

	// Stop ends every track. Calling Stop more than once is safe.
	Stop()
}

// Devices is the media device access capability.
type Devices interface {
	// Open acquires a fresh stream satisfying c. It returns an error wrapping
	// [ErrPermissionDenied] or [ErrDeviceUnavailable] when acquisition fails.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Preview is a visible self-view sink for video tracks.
type Preview interface {
	// Attach starts rendering t. Any previously attached track is detached.
	Attach(t Track)

	// Detach stops rendering. Calling Detach with nothing attached is a no-op.
	Detach()
}

// Speaker plays raw PCM audio.
type Speaker interface {
	// Format returns the PCM format Play expects.
	Format() AudioFormat

	// Play blocks until pcm has been handed to the output device or ctx is
	// cancelled.
	Play(ctx context.Context, pcm []byte) error
}

// AudioTrack returns the first audio track of s, or nil.
func AudioTrack(s Stream) Track {
	return firstOfKind(s, KindAudio)
}

// VideoTrack returns the first video track of s, or nil.
func VideoTrack(s Stream) Track {
	return firstOfKind(s, KindVideo)
}

func firstOfKind(s Stream, k Kind) Track {
	if s == nil {
		return nil
	}
	for _, t := range s.Tracks() {
		if t.Kind() == k {
			return t
		}
	}
	return nil
}
