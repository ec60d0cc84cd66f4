// Package notify shows desktop notifications for call notices such as a
// blocked microphone or a lost camera.
package notify

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gen2brain/beeep"
)

const (
	appName    = "Mock Interview"
	maxMessage = 100
)

// SendFunc delivers one notification.
type SendFunc func(title, message, icon string) error

// Option configures a [Notifier].
type Option func(*Notifier)

// WithSender replaces the desktop backend.
func WithSender(fn SendFunc) Option {
	return func(n *Notifier) {
		n.send = fn
	}
}

// WithIcon sets the icon path passed to the backend.
func WithIcon(path string) Option {
	return func(n *Notifier) {
		n.icon = path
	}
}

// Notifier sends desktop notifications. It is safe for concurrent use.
type Notifier struct {
	enabled atomic.Bool
	send    SendFunc
	icon    string
}

// New returns a Notifier backed by beeep.
func New(enabled bool, opts ...Option) *Notifier {
	n := &Notifier{send: func(title, message, icon string) error {
		return beeep.Notify(title, message, icon)
	}}
	n.enabled.Store(enabled)
	for _, o := range opts {
		o(n)
	}
	return n
}

// SetEnabled turns notifications on or off.
func (n *Notifier) SetEnabled(enabled bool) { n.enabled.Store(enabled) }

// Enabled reports whether notifications are shown.
func (n *Notifier) Enabled() bool { return n.enabled.Load() }

// Notify shows message under title. Disabled notifiers return nil.
func (n *Notifier) Notify(title, message string) error {
	if !n.enabled.Load() {
		return nil
	}
	full := appName
	if title != "" && title != appName {
		full = appName + ": " + title
	}
	if err := n.send(full, truncate(message), n.icon); err != nil {
		slog.Debug("notify: send failed", "title", full, "err", err)
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Ended announces the end of the interview.
func (n *Notifier) Ended(sessionID string) error {
	return n.Notify("Interview finished", "Session "+sessionID+" is ready for feedback.")
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessage {
		return s
	}
	r := []rune(s)
	return string(r[:maxMessage]) + "..."
}
