package local

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// cameraTrack publishes JPEG-encoded frames from an OpenCV capture device.
type cameraTrack struct {
	id       string
	capture  *gocv.VideoCapture
	interval time.Duration
	fan      media.Fanout

	running atomic.Bool
	done    chan struct{}
}

func openCamera(id string, index, fps int) (*cameraTrack, error) {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("local: open camera %d: %w: %v", index, media.ErrDeviceUnavailable, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("local: camera %d refused to open: %w", index, media.ErrPermissionDenied)
	}
	t := &cameraTrack{
		id:       id,
		capture:  capture,
		interval: time.Second / time.Duration(fps),
		done:     make(chan struct{}),
	}
	t.running.Store(true)
	go t.captureLoop()
	return t, nil
}

func (t *cameraTrack) ID() string { return t.id }
func (t *cameraTrack) Kind() media.Kind { return media.KindVideo }
func (t *cameraTrack) Format() media.AudioFormat { return media.AudioFormat{} }
func (t *cameraTrack) Subscribe() (<-chan []byte, func()) { return t.fan.Subscribe() }
func (t *cameraTrack) Live() bool { return t.running.Load() }

func (t *cameraTrack) captureLoop() {
	defer close(t.done)

	img := gocv.NewMat()
	defer img.Close()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for range ticker.C {
		if !t.running.Load() {
			return
		}
		if ok := t.capture.Read(&img); !ok || img.Empty() {
			continue
		}
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
		if err != nil {
			slog.Debug("camera frame encode failed", "track", t.id, "err", err)
			continue
		}
		frame := make([]byte, buf.Len())
		copy(frame, buf.GetBytes())
		buf.Close()
		t.fan.Publish(frame)
	}
}

func (t *cameraTrack) stop() {
	if !t.running.CompareAndSwap(true, false) {
		return
	}
	select {
	case <-t.done:
	case <-time.After(2 * t.interval):
	}
	t.capture.Close()
	t.fan.Close()
}
