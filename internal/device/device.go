// Package device implements the Device Session Manager of the interview call.
//
// The [Manager] owns the one live media stream of the call. It acquires a fresh
// stream whenever the video toggle changes, lends the stream's tracks to the
// self-view preview and to the recorder and recognizer, and is the only
// component that ever stops tracks.
//
// Acquisitions are generation-counted: when a newer [Manager.AcquireStream],
// [Manager.ReleaseStream] or [Manager.Close] happens while an older acquisition
// is still waiting on the platform, the older result is stopped on arrival and
// reported as [ErrSuperseded].
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/mockinterview/pkg/media"
)

var (
	// ErrSuperseded is returned by AcquireStream when a newer acquisition or
	// release happened before the platform delivered the stream.
	ErrSuperseded = errors.New("device: acquisition superseded")

	// ErrClosed is returned after [Manager.Close].
	ErrClosed = errors.New("device: manager closed")
)

// Acquired describes the stream handed out by [Manager.AcquireStream].
type Acquired struct {
	// Stream is the live stream. It stays owned by the Manager.
	Stream media.Stream

	// VideoOn is false when video was requested but could not be acquired
	// and the Manager fell back to audio only.
	VideoOn bool
}

// Manager is the Device Session Manager. All methods are safe for concurrent
// use.
type Manager struct {
	devices media.Devices
	preview media.Preview

	mu      sync.Mutex
	gen     uint64
	stream  media.Stream
	videoOn bool
	closed  bool
}

// New returns a Manager acquiring from devices. preview may be nil when there
// is no visible self-view.
func New(devices media.Devices, preview media.Preview) *Manager {
	return &Manager{devices: devices, preview: preview}
}

// RequestJoinPermissions probes combined audio and video access once and
// releases the probe immediately. A host without a camera passes the probe on
// audio alone. The returned error wraps [media.ErrPermissionDenied] when the
// user declined.
func (m *Manager) RequestJoinPermissions(ctx context.Context) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	probe, err := m.devices.Open(ctx, media.Constraints{Audio: true, Video: true})
	if errors.Is(err, media.ErrDeviceUnavailable) {
		slog.Debug("device: no camera for permission probe, retrying audio only", "err", err)
		probe, err = m.devices.Open(ctx, media.Constraints{Audio: true})
	}
	if err != nil {
		return fmt.Errorf("device: request join permissions: %w", err)
	}
	probe.Stop()
	return nil
}

// AcquireStream releases the currently held stream and acquires a fresh one
// for videoEnabled. When video cannot be acquired it falls back to audio only
// and reports VideoOn false. With video on, the video track is attached to
// the preview.
func (m *Manager) AcquireStream(ctx context.Context, videoEnabled bool) (Acquired, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Acquired{}, ErrClosed
	}
	m.gen++
	gen := m.gen
	m.releaseLocked()
	m.mu.Unlock()

	stream, err := m.devices.Open(ctx, media.Constraints{Audio: true, Video: videoEnabled})
	videoOn := videoEnabled
	if err != nil && videoEnabled && ctx.Err() == nil {
		slog.Warn("device: video acquisition failed, falling back to audio only", "err", err)
		videoOn = false
		stream, err = m.devices.Open(ctx, media.Constraints{Audio: true})
	}
	if err != nil {
		return Acquired{}, fmt.Errorf("device: acquire stream: %w", err)
	}
	if videoOn && media.VideoTrack(stream) == nil {
		videoOn = false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.gen != gen {
		stream.Stop()
		return Acquired{}, ErrSuperseded
	}
	m.stream = stream
	m.videoOn = videoOn
	if videoOn && m.preview != nil {
		m.preview.Attach(media.VideoTrack(stream))
	}
	slog.Debug("device: stream acquired", "stream", stream.ID(), "video", videoOn)
	return Acquired{Stream: stream, VideoOn: videoOn}, nil
}

// ReleaseStream stops every track of the held stream and detaches the
// preview. Pending acquisitions are superseded. Releasing with nothing held
// is a no-op.
func (m *Manager) ReleaseStream() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	if m.stream == nil {
		return
	}
	if m.videoOn && m.preview != nil {
		m.preview.Detach()
	}
	slog.Debug("device: stream released", "stream", m.stream.ID())
	m.stream.Stop()
	m.stream = nil
	m.videoOn = false
}

// Close releases the held stream and rejects further acquisitions.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.gen++
	m.releaseLocked()
	return nil
}

// Stream returns the held stream, or nil.
func (m *Manager) Stream() media.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// VideoOn reports whether the held stream carries live video.
func (m *Manager) VideoOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoOn
}

// AudioTrack returns the live microphone track of the held stream. It returns
// an error wrapping [media.ErrDeviceUnavailable] when no live stream is held.
func (m *Manager) AudioTrack() (media.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil, fmt.Errorf("device: no stream held: %w", media.ErrDeviceUnavailable)
	}
	t := media.AudioTrack(m.stream)
	if t == nil || !t.Live() {
		return nil, fmt.Errorf("device: microphone track not live: %w", media.ErrDeviceUnavailable)
	}
	return t, nil
}
