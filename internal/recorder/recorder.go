// Package recorder implements the Recorder Adapter of the interview call.
//
// A [Recorder] captures the microphone track of the call stream into an
// uploadable container for exactly one user turn. [Recorder.Start] clears the
// chunk buffer and begins encoding; [Recorder.Stop] waits a bounded time for
// the capture to drain, flushes the encoder and assembles the chunks into one
// [Recording]. The stream itself stays owned by the device manager: the
// recorder only subscribes to its audio track.
package recorder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/mockinterview/pkg/media"
	"github.com/MrWong99/mockinterview/pkg/media/container"
)

// DefaultFlushTimeout bounds how long Stop waits for pending capture data.
const DefaultFlushTimeout = 250 * time.Millisecond

// DefaultPreferences is the container preference list used when none is
// configured.
var DefaultPreferences = []string{container.MIMEOggOpus, container.MIMEWAV}

// AudioSource hands out the live microphone track. It is satisfied by the
// device manager.
type AudioSource interface {
	AudioTrack() (media.Track, error)
}

// Recording is the assembled audio of one user turn.
type Recording struct {
	Blob     []byte
	MIMEType string
	Filename string
	Chunks   int
	Duration time.Duration
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithFlushTimeout overrides [DefaultFlushTimeout].
func WithFlushTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.flushTimeout = d
		}
	}
}

// WithPreferences sets the ordered container preference list. The first
// supported entry wins.
func WithPreferences(prefs ...string) Option {
	return func(r *Recorder) {
		if len(prefs) > 0 {
			r.prefs = prefs
		}
	}
}

// Recorder is the Recorder Adapter. All methods are safe for concurrent use.
type Recorder struct {
	source       AudioSource
	prefs        []string
	flushTimeout time.Duration

	mu    sync.Mutex
	cur   *recording
	turns int
}

// New returns a Recorder capturing from source.
func New(source AudioSource, opts ...Option) *Recorder {
	r := &Recorder{
		source:       source,
		prefs:        DefaultPreferences,
		flushTimeout: DefaultFlushTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// MIMEType returns the container type recordings will use for a track at the
// preferred rate.
func (r *Recorder) MIMEType() string {
	return container.Select(r.prefs)
}

// Active reports whether a turn is being recorded.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Start begins recording a new turn from an empty buffer. Starting while
// recording does nothing. It fails when no live microphone track is
// available.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return nil
	}

	track, err := r.source.AudioTrack()
	if err != nil {
		return fmt.Errorf("recorder: start: %w", err)
	}
	rec, err := newRecording(r.MIMEType(), track.Format())
	if err != nil {
		return fmt.Errorf("recorder: start: %w", err)
	}
	rec.attach(track)
	r.cur = rec
	slog.Debug("recorder: started", "mime", rec.writer.MIMEType(), "track", track.ID())
	return nil
}

// Rebind moves the running recording onto the current microphone track,
// keeping the buffered chunks. It is used after the device manager replaced
// the call stream. Rebinding while not recording does nothing.
func (r *Recorder) Rebind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	track, err := r.source.AudioTrack()
	if err != nil {
		return fmt.Errorf("recorder: rebind: %w", err)
	}
	if track.Format() != r.cur.format {
		return fmt.Errorf("recorder: rebind: track format %s differs from recording format %s", track.Format(), r.cur.format)
	}
	r.cur.detach(r.flushTimeout)
	r.cur.attach(track)
	return nil
}

// Stop ends the turn and returns its assembled recording. ok is false when
// nothing was being recorded.
func (r *Recorder) Stop() (rec Recording, ok bool) {
	r.mu.Lock()
	cur := r.cur
	r.cur = nil
	if cur != nil {
		r.turns++
	}
	turn := r.turns
	r.mu.Unlock()
	if cur == nil {
		return Recording{}, false
	}

	cur.detach(r.flushTimeout)
	blob := cur.finish()
	mime := cur.writer.MIMEType()
	rec = Recording{
		Blob:     blob,
		MIMEType: mime,
		Filename: fmt.Sprintf("turn-%03d%s", turn, container.Extension(mime)),
		Chunks:   cur.chunkCount(),
		Duration: cur.duration(),
	}
	slog.Debug("recorder: stopped", "mime", mime, "bytes", len(blob), "chunks", rec.Chunks, "duration", rec.Duration)
	return rec, true
}

// Discard ends the turn and drops its audio. Discarding while not recording
// does nothing.
func (r *Recorder) Discard() {
	r.mu.Lock()
	cur := r.cur
	r.cur = nil
	r.mu.Unlock()
	if cur == nil {
		return
	}
	cur.detach(r.flushTimeout)
	cur.finish()
	slog.Debug("recorder: discarded turn")
}

// recording is the chunk buffer and encoder of one turn. The writer emits
// every encoded piece through Write, which keeps it as one chunk.
type recording struct {
	format media.AudioFormat

	mu       sync.Mutex
	writer   container.Writer
	chunks   [][]byte
	pcmBytes int
	closed   bool
	warned   bool

	unsub func()
	done  chan struct{}
}

func newRecording(mime string, f media.AudioFormat) (*recording, error) {
	rec := &recording{format: f}
	w, err := container.New(mime, f, rec)
	if err != nil && mime != container.Fallback {
		slog.Warn("recorder: preferred container unusable, using fallback",
			"mime", mime, "fallback", container.Fallback, "err", err)
		w, err = container.New(container.Fallback, f, rec)
	}
	if err != nil {
		return nil, err
	}
	rec.writer = w
	return rec, nil
}

// Write implements io.Writer for the container sink.
func (rec *recording) Write(p []byte) (int, error) {
	rec.chunks = append(rec.chunks, append([]byte(nil), p...))
	return len(p), nil
}

func (rec *recording) attach(track media.Track) {
	frames, unsub := track.Subscribe()
	rec.unsub = unsub
	rec.done = make(chan struct{})
	go rec.pump(frames, rec.done)
}

func (rec *recording) pump(frames <-chan []byte, done chan struct{}) {
	defer close(done)
	for frame := range frames {
		rec.mu.Lock()
		if rec.closed {
			rec.mu.Unlock()
			continue
		}
		if err := rec.writer.Write(frame); err != nil {
			if !rec.warned {
				slog.Warn("recorder: encode failed, dropping audio", "err", err)
				rec.warned = true
			}
		} else {
			rec.pcmBytes += len(frame)
		}
		rec.mu.Unlock()
	}
}

// detach unsubscribes from the track and waits up to timeout for buffered
// frames to be encoded.
func (rec *recording) detach(timeout time.Duration) {
	if rec.unsub == nil {
		return
	}
	rec.unsub()
	rec.unsub = nil
	select {
	case <-rec.done:
	case <-time.After(timeout):
		slog.Debug("recorder: flush timed out", "timeout", timeout)
	}
}

// finish closes the encoder and assembles the chunk buffer.
func (rec *recording) finish() []byte {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.closed {
		rec.closed = true
		if err := rec.writer.Close(); err != nil {
			slog.Warn("recorder: flush encoder", "err", err)
		}
	}
	var size int
	for _, c := range rec.chunks {
		size += len(c)
	}
	blob := make([]byte, 0, size)
	for _, c := range rec.chunks {
		blob = append(blob, c...)
	}
	if f, ok := rec.writer.(container.Finalizer); ok {
		blob = f.Finalize(blob)
	}
	return blob
}

func (rec *recording) chunkCount() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.chunks)
}

func (rec *recording) duration() time.Duration {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	bps := rec.format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(rec.pcmBytes) * time.Second / time.Duration(bps)
}
