package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/mockinterview/pkg/media"
	"github.com/MrWong99/mockinterview/pkg/provider/tts"
	ttsmock "github.com/MrWong99/mockinterview/pkg/provider/tts/mock"
)

func drain(ch <-chan []byte) []string {
	var out []string
	for b := range ch {
		out = append(out, string(b))
	}
	return out
}

func textOf(s string) <-chan string {
	ch := make(chan string, 1)
	ch <- s
	close(ch)
	return ch
}

func TestTTSFallback_SynthesizeStream(t *testing.T) {
	tests := []struct {
		name       string
		primaryErr error
		want       string
	}{
		{name: "primary", want: "primary-audio"},
		{name: "failover", primaryErr: errors.New("quota exceeded"), want: "fallback-audio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &ttsmock.Provider{SynthesizeErr: tt.primaryErr, SynthesizeChunks: [][]byte{[]byte("primary-audio")}}
			secondary := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("fallback-audio")}}
			fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
			if !fb.AddFallback("local", secondary) {
				t.Fatal("AddFallback rejected a provider with the same format")
			}

			audio, err := fb.SynthesizeStream(context.Background(), textOf("Tell me about a project."), tts.Voice{ID: "v1"})
			if err != nil {
				t.Fatalf("SynthesizeStream: %v", err)
			}
			got := drain(audio)
			if len(got) != 1 || got[0] != tt.want {
				t.Fatalf("audio = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	fb := NewTTSFallback(&ttsmock.Provider{SynthesizeErr: errors.New("down")}, "elevenlabs", FallbackConfig{})
	fb.AddFallback("local", &ttsmock.Provider{SynthesizeErr: errors.New("down too")})

	if _, err := fb.SynthesizeStream(context.Background(), textOf("hi"), tts.Voice{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	primary := &ttsmock.Provider{ListVoicesErr: errors.New("unauthorized")}
	secondary := &ttsmock.Provider{ListVoicesResult: []tts.Voice{{ID: "v2", Name: "Samantha", Language: "en-US"}}}
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	fb.AddFallback("local", secondary)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].Name != "Samantha" {
		t.Fatalf("voices = %+v", voices)
	}
}

func TestTTSFallback_FormatMismatch(t *testing.T) {
	primary := &ttsmock.Provider{OutputFormat: media.AudioFormat{SampleRate: 24000, Channels: 1}}
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	if fb.AddFallback("local", &ttsmock.Provider{}) {
		t.Fatal("AddFallback accepted a 16 kHz provider behind a 24 kHz primary")
	}
	if got := fb.Format(); got.SampleRate != 24000 {
		t.Fatalf("Format = %+v", got)
	}
}
