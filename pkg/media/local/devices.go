// Package local implements the media capability on the host machine: the
// default PortAudio input and output devices for microphone and speaker, and
// an OpenCV camera plus self-view window for video.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// Config selects capture parameters.
type Config struct {
	// SampleRate of microphone capture and speaker playback. Default: 48000.
	SampleRate int

	// Channels of microphone capture. Default: 1.
	Channels int

	// FramesPerBuffer is the PortAudio buffer size. Default: 960 (20 ms at 48 kHz).
	FramesPerBuffer int

	// CameraIndex is the OpenCV capture device index. Default: 0.
	CameraIndex int

	// CameraFPS caps the rate of published video frames. Default: 15.
	CameraFPS int
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = c.SampleRate / 50
	}
	if c.CameraFPS <= 0 {
		c.CameraFPS = 15
	}
}

// Devices opens streams from the host's default devices.
type Devices struct {
	cfg Config
	seq atomic.Int64

	closeOnce sync.Once
}

var _ media.Devices = (*Devices)(nil)

// New initialises PortAudio. Call Close to release it.
func New(cfg Config) (*Devices, error) {
	cfg.applyDefaults()
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("local: initialise portaudio: %w", err)
	}
	return &Devices{cfg: cfg}, nil
}

// Close terminates PortAudio.
func (d *Devices) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

// Speaker returns a speaker on the default output device.
func (d *Devices) Speaker() *Speaker {
	return newSpeaker(media.AudioFormat{SampleRate: d.cfg.SampleRate, Channels: 1}, d.cfg.FramesPerBuffer)
}

// Open implements [media.Devices]. When video is requested and the camera
// cannot be opened, the already opened microphone is released again.
func (d *Devices) Open(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("local-%d", d.seq.Add(1))
	s := &stream{id: id}

	if c.Audio {
		t, err := openMicrophone(id+"/audio", d.cfg)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		t, err := openCamera(id+"/video", d.cfg.CameraIndex, d.cfg.CameraFPS)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	if len(s.tracks) == 0 {
		return nil, fmt.Errorf("local: no devices requested: %w", media.ErrDeviceUnavailable)
	}
	slog.Debug("local media stream opened", "stream", id, "audio", c.Audio, "video", c.Video)
	return s, nil
}

// stoppable is a track that owns a device.
type stoppable interface {
	media.Track
	stop()
}

type stream struct {
	id     string
	tracks []media.Track
	once   sync.Once
}

func (s *stream) ID() string { return s.id }
func (s *stream) Tracks() []media.Track { return s.tracks }

func (s *stream) Stop() {
	s.once.Do(func() {
		for _, t := range s.tracks {
			t.(stoppable).stop()
		}
		slog.Debug("local media stream stopped", "stream", s.id)
	})
}

// micTrack captures 16-bit PCM from the default input device.
type micTrack struct {
	id     string
	format media.AudioFormat
	pa     *portaudio.Stream
	buf    []int16
	fan    media.Fanout

	running atomic.Bool
	done    chan struct{}
}

func openMicrophone(id string, cfg Config) (*micTrack, error) {
	t := &micTrack{
		id:     id,
		format: media.AudioFormat{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		buf:    make([]int16, cfg.FramesPerBuffer*cfg.Channels),
		done:   make(chan struct{}),
	}
	pa, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, t.buf)
	if err != nil {
		return nil, fmt.Errorf("local: open microphone: %w", classify(err))
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		return nil, fmt.Errorf("local: start microphone: %w", classify(err))
	}
	t.pa = pa
	t.running.Store(true)
	go t.captureLoop()
	return t, nil
}

func (t *micTrack) ID() string { return t.id }
func (t *micTrack) Kind() media.Kind { return media.KindAudio }
func (t *micTrack) Format() media.AudioFormat { return t.format }
func (t *micTrack) Subscribe() (<-chan []byte, func()) { return t.fan.Subscribe() }
func (t *micTrack) Live() bool { return t.running.Load() }

func (t *micTrack) captureLoop() {
	defer close(t.done)
	for t.running.Load() {
		avail, err := t.pa.AvailableToRead()
		if err != nil || avail < len(t.buf)/t.format.Channels {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err := t.pa.Read(); err != nil {
			if !errors.Is(err, portaudio.InputOverflowed) {
				slog.Debug("microphone read failed", "track", t.id, "err", err)
			}
			continue
		}
		t.fan.Publish(int16sToBytes(t.buf))
	}
}

func (t *micTrack) stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	select {
	case <-t.done:
	case <-time.After(200 * time.Millisecond):
	}
	_ = t.pa.Stop()
	_ = t.pa.Close()
	t.fan.Close()
}

// classify maps PortAudio failures onto the media sentinels.
func classify(err error) error {
	if errors.Is(err, portaudio.InvalidDevice) || errors.Is(err, portaudio.DeviceUnavailable) {
		return fmt.Errorf("%w: %v", media.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("%w: %v", media.ErrPermissionDenied, err)
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte, dst []int16) {
	for i := range dst {
		if i*2+1 >= len(b) {
			dst[i] = 0
			continue
		}
		dst[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
}
