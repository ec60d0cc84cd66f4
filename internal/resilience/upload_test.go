package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingUploader struct {
	calls int
	err   error
}

func (u *countingUploader) UploadAudio(context.Context, string, string, string, []byte) error {
	u.calls++
	return u.err
}

func TestGuardedUploader(t *testing.T) {
	next := &countingUploader{err: errors.New("502 bad gateway")}
	g := NewGuardedUploader(next, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for i := range 2 {
		err := g.UploadAudio(ctx, "s-1", "turn-001.ogg", "audio/ogg", []byte("OggS"))
		if err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("upload %d err = %v, want the backend error", i, err)
		}
	}
	if g.State() != StateOpen {
		t.Fatalf("state = %v, want open", g.State())
	}

	err := g.UploadAudio(ctx, "s-1", "turn-003.ogg", "audio/ogg", []byte("OggS"))
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if next.calls != 2 {
		t.Fatalf("backend calls = %d, want 2", next.calls)
	}
}

func TestGuardedUploader_Success(t *testing.T) {
	next := &countingUploader{}
	g := NewGuardedUploader(next, CircuitBreakerConfig{})
	if err := g.UploadAudio(context.Background(), "s-1", "turn-001.wav", "audio/wav", []byte("RIFF")); err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	if next.calls != 1 || g.State() != StateClosed {
		t.Fatalf("calls = %d, state = %v", next.calls, g.State())
	}
}
