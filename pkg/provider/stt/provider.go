// Package stt defines the Provider interface for streaming speech-to-text
// backends.
//
// A provider opens a [SessionHandle] that accepts raw PCM and emits two
// streams of [Transcript] values: interim partials while the speaker is still
// talking and finals once the backend has committed to a segment. When a
// session ends on its own, [SessionHandle.Err] reports why.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes the audio format and recognition hints for a session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int

	// Language is a BCP-47 tag (e.g. "en-US"). Empty lets the backend decide.
	Language string

	// Keywords are vocabulary hints such as the company or role under
	// discussion.
	Keywords []KeywordBoost
}

// Transcript is one recognition result.
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64

	// Words holds per-word timing when the backend reports it.
	Words []WordDetail
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a recognition hint with a backend-specific intensity.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}

// SessionHandle is an open streaming session. Callers must call Close.
type SessionHandle interface {
	// SendAudio delivers a PCM chunk matching the StreamConfig. It returns an
	// error after the session has ended.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Err returns the error that ended the session, or nil if it was closed
	// normally or is still running.
	Err() error

	// Close flushes pending audio and ends the session. Safe to call more
	// than once.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a session ready to accept audio immediately.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
