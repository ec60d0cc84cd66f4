package notify_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/mockinterview/internal/notify"
	"github.com/MrWong99/mockinterview/internal/turn"
)

var _ turn.Notifier = (*notify.Notifier)(nil)

type sent struct{ title, message, icon string }

func recorder(out *[]sent, err error) notify.SendFunc {
	return func(title, message, icon string) error {
		*out = append(*out, sent{title, message, icon})
		return err
	}
}

func TestNotify(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		message string
		want    sent
	}{
		{"plain", "Microphone", "Microphone access was blocked.", sent{"Mock Interview: Microphone", "Microphone access was blocked.", "icon.png"}},
		{"app title", "Mock interview", "Camera lost.", sent{"Mock Interview: Mock interview", "Camera lost.", "icon.png"}},
		{"no title", "", "hello", sent{"Mock Interview", "hello", "icon.png"}},
		{"truncated", "t", strings.Repeat("ä", 150), sent{"Mock Interview: t", strings.Repeat("ä", 100) + "...", "icon.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []sent
			n := notify.New(true, notify.WithSender(recorder(&got, nil)), notify.WithIcon("icon.png"))
			if err := n.Notify(tt.title, tt.message); err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if len(got) != 1 || got[0] != tt.want {
				t.Fatalf("sent = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNotify_Disabled(t *testing.T) {
	var got []sent
	n := notify.New(false, notify.WithSender(recorder(&got, nil)))
	_ = n.Notify("x", "y")
	if len(got) != 0 {
		t.Fatalf("disabled notifier sent %d", len(got))
	}
	n.SetEnabled(true)
	_ = n.Ended("s-1")
	if len(got) != 1 || !strings.Contains(got[0].message, "s-1") || !n.Enabled() {
		t.Fatalf("sent = %+v", got)
	}
}

func TestNotify_Error(t *testing.T) {
	var got []sent
	boom := errors.New("no dbus")
	n := notify.New(true, notify.WithSender(recorder(&got, boom)))
	if err := n.Notify("x", "y"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
