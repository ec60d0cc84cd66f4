// Package mock provides test doubles for the media package interfaces.
//
// Devices hands out Stream values built from Track doubles. Tests push frames
// into a track with Track.Push and inspect which streams were opened and
// stopped through the recorded calls.
//
// Example:
//
//	d := &mock.Devices{}
//	s, _ := d.Open(ctx, media.Constraints{Audio: true})
//	d.LastStream().AudioTrack().Push(pcm)
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// DefaultFormat is the PCM format of mock audio tracks.
var DefaultFormat = media.AudioFormat{SampleRate: 48000, Channels: 1}

// Track is a mock implementation of media.Track.
type Track struct {
	id     string
	kind   media.Kind
	format media.AudioFormat
	fan    media.Fanout
}

// NewTrack returns a live track of the given kind.
func NewTrack(id string, kind media.Kind) *Track {
	t := &Track{id: id, kind: kind}
	if kind == media.KindAudio {
		t.format = DefaultFormat
	}
	return t
}

func (t *Track) ID() string { return t.id }
func (t *Track) Kind() media.Kind { return t.kind }
func (t *Track) Format() media.AudioFormat { return t.format }
func (t *Track) Subscribe() (<-chan []byte, func()) { return t.fan.Subscribe() }
func (t *Track) Live() bool { return !t.fan.Closed() }

// Push delivers frame to all subscribers.
func (t *Track) Push(frame []byte) { t.fan.Publish(frame) }

// End stops the track as if the device went away.
func (t *Track) End() { t.fan.Close() }

var _ media.Track = (*Track)(nil)

// Stream is a mock implementation of media.Stream.
type Stream struct {
	id     string
	tracks []media.Track

	mu        sync.Mutex
	stopCalls int
}

// NewStream builds a stream with one audio track and, if video is true, one
// video track.
func NewStream(id string, video bool) *Stream {
	s := &Stream{id: id}
	s.tracks = append(s.tracks, NewTrack(id+"/audio", media.KindAudio))
	if video {
		s.tracks = append(s.tracks, NewTrack(id+"/video", media.KindVideo))
	}
	return s
}

func (s *Stream) ID() string { return s.id }
func (s *Stream) Tracks() []media.Track { return s.tracks }

// Stop ends all tracks and records the call.
func (s *Stream) Stop() {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
	for _, t := range s.tracks {
		t.(*Track).End()
	}
}

// StopCalls returns how often Stop was called.
func (s *Stream) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// Stopped reports whether Stop was called at least once.
func (s *Stream) Stopped() bool { return s.StopCalls() > 0 }

// AudioTrack returns the mock audio track.
func (s *Stream) AudioTrack() *Track {
	if t := media.AudioTrack(s); t != nil {
		return t.(*Track)
	}
	return nil
}

// HasVideo reports whether the stream carries a video track.
func (s *Stream) HasVideo() bool { return media.VideoTrack(s) != nil }

var _ media.Stream = (*Stream)(nil)

// OpenCall records a single invocation of Devices.Open.
type OpenCall struct {
	Constraints media.Constraints
}

// Devices is a mock implementation of media.Devices.
type Devices struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned for every Open call.
	OpenErr error

	// VideoErr, if non-nil, is returned for Open calls that request video.
	VideoErr error

	// Gate, if non-nil, blocks every Open until a value is received or ctx
	// ends. Use it to simulate slow device acquisition.
	Gate chan struct{}

	OpenCalls []OpenCall
	Streams   []*Stream
}

// Open records the call and returns a new Stream.
func (d *Devices) Open(ctx context.Context, c media.Constraints) (media.Stream, error) {
	d.mu.Lock()
	d.OpenCalls = append(d.OpenCalls, OpenCall{Constraints: c})
	gate := d.Gate
	openErr, videoErr := d.OpenErr, d.VideoErr
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if openErr != nil {
		return nil, openErr
	}
	if c.Video && videoErr != nil {
		return nil, videoErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s := NewStream(fmt.Sprintf("stream-%d", len(d.Streams)+1), c.Video)
	d.Streams = append(d.Streams, s)
	return s, nil
}

// LastStream returns the most recently opened stream, or nil.
func (d *Devices) LastStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Streams) == 0 {
		return nil
	}
	return d.Streams[len(d.Streams)-1]
}

// AllStreams returns a copy of every stream opened so far.
func (d *Devices) AllStreams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Stream, len(d.Streams))
	copy(out, d.Streams)
	return out
}

// Calls returns a copy of the recorded Open calls.
func (d *Devices) Calls() []OpenCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]OpenCall, len(d.OpenCalls))
	copy(out, d.OpenCalls)
	return out
}

// SetOpenErr replaces OpenErr under the lock.
func (d *Devices) SetOpenErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenErr = err
}

var _ media.Devices = (*Devices)(nil)

// Preview is a mock implementation of media.Preview.
type Preview struct {
	mu       sync.Mutex
	attached media.Track
	Attaches int
	Detaches int
}

func (p *Preview) Attach(t media.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = t
	p.Attaches++
}

func (p *Preview) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = nil
	p.Detaches++
}

// Attached returns the currently attached track, or nil.
func (p *Preview) Attached() media.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

var _ media.Preview = (*Preview)(nil)

// Speaker is a mock implementation of media.Speaker that records played PCM.
type Speaker struct {
	mu     sync.Mutex
	Played [][]byte

	// PlayErr, if non-nil, is returned from Play.
	PlayErr error

	// Gate, if non-nil, makes Play wait for a value or ctx cancellation.
	Gate chan struct{}
}

func (s *Speaker) Format() media.AudioFormat { return DefaultFormat }

func (s *Speaker) Play(ctx context.Context, pcm []byte) error {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PlayErr != nil {
		return s.PlayErr
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.Played = append(s.Played, cp)
	return nil
}

// PlayedBytes returns the total number of bytes played.
func (s *Speaker) PlayedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.Played {
		n += len(p)
	}
	return n
}

var _ media.Speaker = (*Speaker)(nil)
