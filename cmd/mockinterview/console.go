package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/mockinterview/internal/app"
	"github.com/MrWong99/mockinterview/internal/turn"
	"github.com/MrWong99/mockinterview/pkg/interview"
)

const consoleHelp = `Commands:
  <text>          answer with typed text
  (empty line)    send the live transcript
  /join           join the call (again after a permission error)
  /mic on|off     toggle the microphone
  /video on|off   toggle the camera
  /end            leave the call
  /help           show this help`

// call is the part of the Turn Controller the console drives.
type call interface {
	Join(ctx context.Context) error
	Send(ctx context.Context, text string) error
	SetMic(ctx context.Context, on bool) error
	SetVideo(ctx context.Context, on bool) error
	End(ctx context.Context) error
	Changed() <-chan struct{}
	Done() <-chan struct{}
}

var _ call = (*turn.Controller)(nil)

// console is a line-based front end: it turns input lines into controller
// commands and prints the transcript, captions and notices as they change.
type console struct {
	call call
	view func() app.View
	in   io.Reader
	out  io.Writer

	printed   int
	state     string
	caption   string
	notice    string
	completed bool
}

func newConsole(c call, view func() app.View, in io.Reader, out io.Writer) *console {
	return &console{call: c, view: view, in: in, out: out}
}

// Run joins the call and serves the console until the call ends, input is
// exhausted or ctx is cancelled. End of input ends the call.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, consoleHelp)
	c.join(ctx)
	c.render()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.call.Done():
			c.render()
			return nil
		case <-c.call.Changed():
			c.render()
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if err := c.call.End(ctx); err != nil && !errors.Is(err, turn.ErrClosed) {
					return err
				}
				continue
			}
			c.handle(ctx, line)
		}
	}
}

func (c *console) handle(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/help":
		fmt.Fprintln(c.out, consoleHelp)
	case "/join":
		c.join(ctx)
	case "/mic", "/video":
		on, ok := parseToggle(arg)
		if !ok {
			fmt.Fprintf(c.out, "usage: %s on|off\n", cmd)
			return
		}
		var err error
		if cmd == "/mic" {
			err = c.call.SetMic(ctx, on)
		} else {
			err = c.call.SetVideo(ctx, on)
		}
		c.report(err)
	case "/end":
		c.report(c.call.End(ctx))
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(c.out, "unknown command %s, try /help\n", cmd)
			return
		}
		switch err := c.call.Send(ctx, strings.TrimSpace(line)); {
		case errors.Is(err, turn.ErrNotListening):
			fmt.Fprintln(c.out, "wait for the interviewer to finish speaking")
		case errors.Is(err, turn.ErrBusy):
			fmt.Fprintln(c.out, "wait for the interviewer's reply")
		case errors.Is(err, turn.ErrEmptyMessage):
			fmt.Fprintln(c.out, "nothing to send")
		default:
			c.report(err)
		}
	}
}

func (c *console) join(ctx context.Context) {
	err := c.call.Join(ctx)
	if errors.Is(err, turn.ErrAlreadyJoined) {
		fmt.Fprintln(c.out, "already in the call")
		return
	}
	if err != nil {
		slog.Debug("console: join failed", "err", err)
	}
}

func (c *console) report(err error) {
	if err != nil && !errors.Is(err, turn.ErrClosed) {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

// render prints everything that changed since the last call.
func (c *console) render() {
	v := c.view()
	for _, m := range v.Messages[min(c.printed, len(v.Messages)):] {
		fmt.Fprintf(c.out, "%s: %s\n", speaker(m.Role), m.Content)
	}
	c.printed = len(v.Messages)

	if v.State != c.state {
		c.state = v.State
		fmt.Fprintf(c.out, "[%s]\n", v.State)
	}
	if v.Caption != c.caption {
		c.caption = v.Caption
		if v.Caption != "" {
			fmt.Fprintf(c.out, "  » %s\n", v.Caption)
		}
	}
	if v.Notice != c.notice {
		c.notice = v.Notice
		if v.Notice != "" {
			fmt.Fprintf(c.out, "! %s\n", v.Notice)
		}
	}
	if v.Completed && !c.completed {
		c.completed = true
		fmt.Fprintln(c.out, "The interview is complete. Type /end to see your feedback.")
	}
}

func speaker(r interview.Role) string {
	if r == interview.RoleModel {
		return "interviewer"
	}
	return "you"
}

func parseToggle(s string) (on, ok bool) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}
