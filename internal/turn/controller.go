package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/mockinterview/internal/device"
	"github.com/MrWong99/mockinterview/internal/observe"
	"github.com/MrWong99/mockinterview/internal/playback"
	"github.com/MrWong99/mockinterview/internal/recognition"
	"github.com/MrWong99/mockinterview/internal/recorder"
	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/journal"
	"github.com/MrWong99/mockinterview/pkg/media"
)

const (
	// DefaultRestartDelay is how long recognition rests after the platform
	// ended a session on its own.
	DefaultRestartDelay = 300 * time.Millisecond

	// journalTimeout bounds a single best-effort journal write.
	journalTimeout = 5 * time.Second
)

// Config holds the collaborators of a [Controller].
type Config struct {
	// SessionID identifies the interview session on the service. Required.
	SessionID string

	// Greeting is the interviewer's opening line. When set it is appended
	// and spoken right after joining.
	Greeting string

	// Devices, Recognition, Playback and Chat are required.
	Devices     *device.Manager
	Recognition *recognition.Adapter
	Playback    *playback.Engine
	Chat        Chat

	// Recorder and Uploader enable per-turn audio capture. Audio capture is
	// off when either is nil.
	Recorder *recorder.Recorder
	Uploader Uploader

	// Journal receives every appended message. Optional.
	Journal journal.Store

	// Notifier receives user-visible notices. Optional.
	Notifier Notifier

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// StartVideo is the initial camera toggle.
	StartVideo bool

	// RestartDelay defaults to [DefaultRestartDelay].
	RestartDelay time.Duration
}

// command is a user request executed inside the loop.
type command struct {
	fn    func(ctx context.Context) error
	reply chan error
}

// Controller is the Turn Controller. Its exported methods are safe for
// concurrent use; all state is owned by the [Controller.Run] loop.
type Controller struct {
	sessionID    string
	greeting     string
	devices      *device.Manager
	recog        *recognition.Adapter
	play         *playback.Engine
	chat         Chat
	rec          *recorder.Recorder
	uploader     Uploader
	journal      journal.Store
	notifier     Notifier
	metrics      *observe.Metrics
	restartDelay time.Duration

	cmds    chan command
	async   chan func(context.Context)
	done    chan struct{}
	changed chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup

	// Loop-owned state.
	state      State
	messages   []interview.Message
	input      string
	micOn      bool
	videoOn    bool
	busy       bool
	completed  bool
	caption    string
	cursor     CaptionCursor
	notice     string
	joining    bool
	stopped    bool
	acquireGen uint64

	snapMu sync.RWMutex
	snap   Snapshot
}

// New validates cfg and returns a Controller in [StateJoining] with the
// microphone on.
func New(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.SessionID == "" {
		errs = append(errs, errors.New("session ID is required"))
	}
	if cfg.Devices == nil {
		errs = append(errs, errors.New("devices are required"))
	}
	if cfg.Recognition == nil {
		errs = append(errs, errors.New("recognition adapter is required"))
	}
	if cfg.Playback == nil {
		errs = append(errs, errors.New("playback engine is required"))
	}
	if cfg.Chat == nil {
		errs = append(errs, errors.New("chat client is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("turn: new controller: %w", err)
	}

	c := &Controller{
		sessionID:    cfg.SessionID,
		greeting:     cfg.Greeting,
		devices:      cfg.Devices,
		recog:        cfg.Recognition,
		play:         cfg.Playback,
		chat:         cfg.Chat,
		journal:      cfg.Journal,
		notifier:     cfg.Notifier,
		metrics:      cfg.Metrics,
		restartDelay: cfg.RestartDelay,
		cmds:         make(chan command),
		async:        make(chan func(context.Context)),
		done:         make(chan struct{}),
		changed:      make(chan struct{}, 1),
		state:        StateJoining,
		micOn:        true,
		videoOn:      cfg.StartVideo,
	}
	if cfg.Recorder != nil && cfg.Uploader != nil {
		c.rec = cfg.Recorder
		c.uploader = cfg.Uploader
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.restartDelay <= 0 {
		c.restartDelay = DefaultRestartDelay
	}
	c.publish()
	return c, nil
}

// Run executes the event loop until ctx is cancelled or [Controller.End] is
// called. On return every adapter is stopped, the call stream is released
// and background work has finished.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.metrics.ActiveCalls.Add(runCtx, 1)
	slog.Info("turn: call mounted", "session_id", c.sessionID)

	defer func() {
		c.teardown()
		cancel()
		close(c.done)
		c.wg.Wait()
		c.metrics.ActiveCalls.Add(context.WithoutCancel(ctx), -1)
		c.publish()
		slog.Info("turn: call unmounted", "session_id", c.sessionID, "messages", len(c.messages))
	}()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case cmd := <-c.cmds:
			cmd.reply <- cmd.fn(runCtx)
		case fn := <-c.async:
			fn(runCtx)
		case ev := <-c.recog.Events():
			c.onRecognition(runCtx, ev)
		case ev := <-c.play.Events():
			c.onPlayback(runCtx, ev)
		}
		c.publish()
		if c.stopped {
			return nil
		}
	}
}

// teardown stops every adapter and releases the call stream.
func (c *Controller) teardown() {
	c.recog.Stop()
	c.play.Cancel()
	if c.rec != nil {
		c.rec.Discard()
	}
	c.devices.ReleaseStream()
	c.busy = false
	c.caption = ""
	c.cursor = CaptionCursor{}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Changed receives a signal after state changes. Signals are coalesced; read
// the state with [Controller.Snapshot].
func (c *Controller) Changed() <-chan struct{} { return c.changed }

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

func (c *Controller) publish() {
	s := Snapshot{
		State:                c.state,
		SessionID:            c.sessionID,
		Messages:             slices.Clone(c.messages),
		Input:                c.input,
		MicOn:                c.micOn,
		VideoOn:              c.videoOn,
		Busy:                 c.busy,
		Completed:            c.completed,
		Caption:              c.caption,
		Cursor:               c.cursor,
		Recognizing:          c.recog.Active(),
		RecognitionAvailable: c.recog.Available(),
		Recording:            c.rec != nil && c.rec.Active(),
		Speaking:             c.play.Active(),
		Notice:               c.notice,
	}
	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// call runs fn inside the loop and returns its error.
func (c *Controller) call(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// post hands a completion from a background goroutine to the loop. It is
// dropped once the loop has stopped.
func (c *Controller) post(fn func(ctx context.Context)) {
	select {
	case c.async <- fn:
	case <-c.done:
	}
}

// goBackground runs fn on a tracked goroutine.
func (c *Controller) goBackground(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Join validates device permissions and acquires the call stream. On
// success the call moves to LISTENING, or straight to AI_SPEAKING when a
// greeting is configured. On failure the call stays in JOINING and Join may
// be retried; the error wraps [media.ErrPermissionDenied] when the user
// declined.
func (c *Controller) Join(ctx context.Context) error {
	var video bool
	err := c.call(ctx, func(context.Context) error {
		switch {
		case c.state != StateJoining:
			return ErrAlreadyJoined
		case c.joining:
			return ErrJoinInProgress
		}
		c.joining = true
		c.notice = ""
		video = c.videoOn
		return nil
	})
	if err != nil {
		return err
	}

	acq, err := c.acquireForJoin(ctx, video)
	loopCtx := context.WithoutCancel(ctx)
	if err != nil {
		_ = c.call(loopCtx, func(context.Context) error {
			c.joining = false
			if errors.Is(err, media.ErrPermissionDenied) {
				c.setNotice(NoticePermissionDenied)
			} else {
				c.setNotice(NoticeDeviceFailed)
			}
			return nil
		})
		return fmt.Errorf("turn: join: %w", err)
	}
	return c.call(loopCtx, func(ctx context.Context) error {
		c.joining = false
		c.onJoined(ctx, acq)
		return nil
	})
}

func (c *Controller) acquireForJoin(ctx context.Context, video bool) (device.Acquired, error) {
	if err := c.devices.RequestJoinPermissions(ctx); err != nil {
		c.recordAcquisition(ctx, err, device.Acquired{}, false)
		return device.Acquired{}, err
	}
	acq, err := c.devices.AcquireStream(ctx, video)
	c.recordAcquisition(ctx, err, acq, video)
	return acq, err
}

func (c *Controller) recordAcquisition(ctx context.Context, err error, acq device.Acquired, video bool) {
	result := "ok"
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		result = "denied"
	case err != nil:
		result = "error"
	case video && !acq.VideoOn:
		result = "audio_only"
	}
	c.metrics.RecordDeviceAcquisition(ctx, result)
}

// Send submits a user turn. An empty text sends the input buffer. Manual
// sends are accepted in LISTENING and SENDING; see [Controller.submit].
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.call(ctx, func(ctx context.Context) error {
		if text == "" {
			text = c.input
		}
		return c.submit(ctx, text, SourceManual)
	})
}

// SetInput replaces the input buffer.
func (c *Controller) SetInput(ctx context.Context, text string) error {
	return c.call(ctx, func(context.Context) error {
		c.input = text
		return nil
	})
}

// SetMic sets the microphone toggle. Turning it off stops recognition and
// drops the running recording immediately.
func (c *Controller) SetMic(ctx context.Context, on bool) error {
	return c.call(ctx, func(ctx context.Context) error {
		c.micOn = on
		if on && (c.notice == NoticeMicBlocked || c.notice == NoticeStreamLost) {
			c.notice = ""
		}
		c.syncCapture(ctx)
		return nil
	})
}

// SetVideo sets the camera toggle. After joining, the call stream is
// re-acquired for the new toggle in the background; if the camera cannot be
// opened the toggle falls back to off.
func (c *Controller) SetVideo(ctx context.Context, on bool) error {
	return c.call(ctx, func(ctx context.Context) error {
		c.videoOn = on
		if c.state == StateJoining {
			return nil
		}
		c.reacquire(ctx, on)
		return nil
	})
}

// End stops the call: every adapter is stopped and the call stream released.
// It waits until teardown has finished or ctx ends.
func (c *Controller) End(ctx context.Context) error {
	err := c.call(ctx, func(context.Context) error {
		c.stopped = true
		return nil
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
