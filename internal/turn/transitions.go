package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/mockinterview/internal/device"
	"github.com/MrWong99/mockinterview/internal/observe"
	"github.com/MrWong99/mockinterview/internal/playback"
	"github.com/MrWong99/mockinterview/internal/recognition"
	"github.com/MrWong99/mockinterview/internal/recorder"
	"github.com/MrWong99/mockinterview/internal/resilience"
	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/journal"
)

// userCapture reports whether recognition and recording should run. It is
// the one place that decides user capture; AI_SPEAKING always suppresses it.
func (c *Controller) userCapture() bool {
	return c.state == StateListening && c.micOn
}

// syncCapture starts or stops recognition and recording to match
// userCapture. Stopping here drops the recording; completed turns stop the
// recorder themselves to keep the audio.
func (c *Controller) syncCapture(ctx context.Context) {
	if !c.userCapture() {
		c.recog.Stop()
		if c.rec != nil {
			c.rec.Discard()
		}
		return
	}
	c.recog.Start(ctx)
	if c.rec != nil && !c.rec.Active() {
		if err := c.rec.Start(); err != nil {
			slog.Warn("turn: recorder did not start", "err", err)
		}
	}
}

func (c *Controller) onJoined(ctx context.Context, acq device.Acquired) {
	c.videoOn = acq.VideoOn
	c.state = StateListening
	slog.Info("turn: joined", "session_id", c.sessionID, "video", acq.VideoOn, "recognition", c.recog.Available())
	if strings.TrimSpace(c.greeting) != "" {
		c.appendMessage(ctx, interview.RoleModel, c.greeting)
		c.speak(ctx, c.greeting)
		return
	}
	c.syncCapture(ctx)
}

// submit handles a finalized transcript or a manual send. Only LISTENING
// accepts it: the recording is stopped and uploaded, the message is appended,
// the input cleared and the chat request issued. At most one chat request is
// outstanding.
func (c *Controller) submit(ctx context.Context, text string, src Source) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	switch c.state {
	case StateJoining:
		return ErrNotJoined
	case StateAISpeaking:
		return ErrNotListening
	case StateSending:
		return ErrBusy
	}

	if c.rec != nil {
		if rec, ok := c.rec.Stop(); ok {
			c.upload(ctx, rec)
		}
	}
	c.appendMessage(ctx, interview.RoleUser, text)
	c.input = ""
	c.state = StateSending
	c.syncCapture(ctx)
	slog.Debug("turn: user turn completed", "source", src)
	c.sendChat(ctx, text)
	return nil
}

func (c *Controller) sendChat(ctx context.Context, text string) {
	c.busy = true
	c.goBackground(func() {
		sctx, span := observe.StartCallSpan(ctx, "interview.chat", c.sessionID)
		start := time.Now()
		reply, err := c.chat.Chat(sctx, c.sessionID, text)
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordChat(sctx, time.Since(start), status)
		if err != nil {
			observe.Logger(sctx).Warn("turn: chat request failed", "session_id", c.sessionID, "err", err)
		}
		observe.EndSpan(span, err)
		c.post(func(ctx context.Context) { c.onReply(ctx, reply, err) })
	})
}

func (c *Controller) onReply(ctx context.Context, reply interview.Reply, err error) {
	c.busy = false
	if err != nil {
		c.state = StateListening
		c.syncCapture(ctx)
		return
	}

	c.appendMessage(ctx, interview.RoleModel, reply.Message)
	if reply.IsInterviewEnded && !c.completed {
		c.completed = true
		slog.Info("turn: interview completed", "session_id", c.sessionID)
	}
	if strings.TrimSpace(reply.Message) == "" {
		c.finishAITurn(ctx)
		return
	}
	c.speak(ctx, reply.Message)
}

// speak hands the floor to the interviewer. User capture stops before
// playback starts.
func (c *Controller) speak(ctx context.Context, text string) {
	c.state = StateAISpeaking
	c.syncCapture(ctx)
	c.caption = ""
	c.cursor = CaptionCursor{FullText: text}
	c.play.Speak(ctx, text)
}

// finishAITurn returns the floor to the user.
func (c *Controller) finishAITurn(ctx context.Context) {
	c.caption = ""
	c.cursor = CaptionCursor{}
	c.state = StateListening
	c.syncCapture(ctx)
}

func (c *Controller) onPlayback(ctx context.Context, ev playback.Event) {
	if !c.play.Current(ev) || c.state != StateAISpeaking {
		return
	}
	switch ev.Kind {
	case playback.EventStart:
		c.caption = ev.Caption
	case playback.EventBoundary:
		c.caption = ev.Caption
		c.cursor.CharIndex = ev.CharIndex
	case playback.EventEnd:
		c.metrics.RecordPlayback(ctx, "end")
		c.finishAITurn(ctx)
	case playback.EventError:
		c.metrics.RecordPlayback(ctx, "error")
		slog.Warn("turn: playback ended early", "err", ev.Err)
		c.finishAITurn(ctx)
	}
}

func (c *Controller) onRecognition(ctx context.Context, ev recognition.Event) {
	if !c.recog.Current(ev) {
		return
	}
	switch ev.Kind {
	case recognition.EventInterim:
		if c.state == StateListening {
			c.input = ev.Text
		}
	case recognition.EventFinal:
		if err := c.submit(ctx, ev.Text, SourceSpeech); err != nil {
			slog.Debug("turn: dropped recognition final", "state", c.state, "err", err)
		}
	case recognition.EventError:
		c.metrics.RecordRecognitionError(ctx, string(ev.Code))
		if !ev.Code.Benign() {
			c.forceMicOff(ctx)
		}
	case recognition.EventEnded:
		c.scheduleRestart(ctx)
	}
}

// forceMicOff handles a fatal recognition error: the microphone toggle is
// forced off until the user turns it back on.
func (c *Controller) forceMicOff(ctx context.Context) {
	slog.Warn("turn: microphone blocked, forcing mic off")
	c.micOn = false
	c.syncCapture(ctx)
	c.setNotice(NoticeMicBlocked)
}

// scheduleRestart restarts recognition after the platform ended a session on
// its own, if the user still holds the floor with the mic on by then.
func (c *Controller) scheduleRestart(ctx context.Context) {
	if !c.userCapture() {
		return
	}
	delay := c.restartDelay
	c.goBackground(func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
		c.post(func(ctx context.Context) {
			if c.userCapture() {
				c.recog.Start(ctx)
			}
		})
	})
}

// reacquire replaces the call stream for a new camera toggle.
func (c *Controller) reacquire(ctx context.Context, video bool) {
	c.acquireGen++
	gen := c.acquireGen
	c.goBackground(func() {
		acq, err := c.devices.AcquireStream(ctx, video)
		if errors.Is(err, device.ErrSuperseded) {
			return
		}
		c.recordAcquisition(ctx, err, acq, video)
		c.post(func(ctx context.Context) { c.onReacquired(ctx, gen, acq, err) })
	})
}

func (c *Controller) onReacquired(ctx context.Context, gen uint64, acq device.Acquired, err error) {
	if gen != c.acquireGen {
		return
	}
	if err != nil {
		slog.Warn("turn: stream re-acquisition failed", "err", err)
		c.videoOn = false
		c.recog.Stop()
		if c.rec != nil {
			c.rec.Discard()
		}
		c.setNotice(NoticeStreamLost)
		return
	}
	c.videoOn = acq.VideoOn
	if c.notice == NoticeStreamLost {
		c.notice = ""
	}
	if c.rec != nil && c.rec.Active() {
		if err := c.rec.Rebind(); err != nil {
			slog.Warn("turn: recorder could not follow new stream, restarting turn recording", "err", err)
			c.rec.Discard()
		}
	}
	if c.recog.Active() {
		c.recog.Stop()
	}
	c.syncCapture(ctx)
}

// appendMessage appends to the transcript and journals it best-effort.
func (c *Controller) appendMessage(ctx context.Context, role interview.Role, content string) {
	c.messages = append(c.messages, interview.Message{Role: role, Content: content})
	c.metrics.RecordTurn(ctx, string(role))
	if c.journal == nil {
		return
	}
	entry := journal.Entry{
		SessionID: c.sessionID,
		Seq:       len(c.messages) - 1,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	c.goBackground(func() {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
		defer cancel()
		if err := c.journal.Append(jctx, entry); err != nil {
			slog.Warn("turn: journal append failed", "session_id", c.sessionID, "seq", entry.Seq, "err", err)
		}
	})
}

// upload sends a completed turn's recording. Failures are only logged.
func (c *Controller) upload(ctx context.Context, rec recorder.Recording) {
	if c.uploader == nil || len(rec.Blob) == 0 {
		return
	}
	c.goBackground(func() {
		uctx, span := observe.StartCallSpan(ctx, "interview.upload_audio", c.sessionID,
			attribute.String("audio.mime_type", rec.MIMEType),
			attribute.Int("audio.bytes", len(rec.Blob)),
		)
		err := c.uploader.UploadAudio(uctx, c.sessionID, rec.Filename, rec.MIMEType, rec.Blob)
		status := "ok"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			status = "circuit_open"
		case err != nil:
			status = "error"
		}
		c.metrics.RecordUpload(uctx, status)
		if err != nil {
			observe.Logger(uctx).Warn("turn: audio upload failed",
				"session_id", c.sessionID, "file", rec.Filename, "bytes", len(rec.Blob), "err", err)
		}
		observe.EndSpan(span, err)
	})
}

// setNotice records a user-visible notice and forwards it to the notifier.
func (c *Controller) setNotice(msg string) {
	c.notice = msg
	if c.notifier == nil {
		return
	}
	n := c.notifier
	c.goBackground(func() {
		if err := n.Notify("Mock interview", msg); err != nil {
			slog.Debug("turn: notification failed", "err", err)
		}
	})
}
