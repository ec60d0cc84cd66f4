package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/mockinterview/pkg/provider/stt"
	sttmock "github.com/MrWong99/mockinterview/pkg/provider/stt/mock"
)

func TestSTTFallback_StartStream(t *testing.T) {
	cfg := stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"}
	tests := []struct {
		name          string
		primaryErr    error
		secondaryErr  error
		wantErr       bool
		wantSecondary int
		wantServing   string
	}{
		{name: "primary", wantServing: "deepgram"},
		{name: "failover", primaryErr: errors.New("deepgram unreachable"), wantSecondary: 1, wantServing: "whisper"},
		{name: "all fail", primaryErr: errors.New("deepgram unreachable"), secondaryErr: errors.New("whisper down"), wantErr: true, wantSecondary: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &sttmock.Provider{StartStreamErr: tt.primaryErr}
			secondary := &sttmock.Provider{StartStreamErr: tt.secondaryErr}
			fb := NewSTTFallback(primary, "deepgram", FallbackConfig{})
			fb.AddFallback("whisper", secondary)

			handle, err := fb.StartStream(context.Background(), cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Fatalf("err = %v, want ErrAllFailed", err)
				}
				if fb.Serving() != "" {
					t.Fatalf("Serving() = %q after failure", fb.Serving())
				}
				return
			}
			if err != nil {
				t.Fatalf("StartStream: %v", err)
			}
			defer handle.Close()
			if fb.Serving() != tt.wantServing {
				t.Fatalf("Serving() = %q, want %q", fb.Serving(), tt.wantServing)
			}
			if primary.CallCount() != 1 || secondary.CallCount() != tt.wantSecondary {
				t.Fatalf("calls primary=%d secondary=%d", primary.CallCount(), secondary.CallCount())
			}
			served := primary
			if tt.wantSecondary == 1 {
				served = secondary
			}
			if got := served.StartStreamCalls[0].Cfg; got.Language != "en-US" || got.SampleRate != 16000 {
				t.Fatalf("config = %+v", got)
			}
		})
	}
}
