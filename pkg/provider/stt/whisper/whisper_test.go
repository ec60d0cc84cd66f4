package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/mockinterview/pkg/provider/stt"
	"github.com/MrWong99/mockinterview/pkg/provider/stt/whisper"
)

// newMockServer answers POST /inference with responseText and counts calls.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// speechPCM returns a 440 Hz tone well above the silence threshold.
func speechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silencePCM(samples int) []byte { return make([]byte, samples*2) }

func startStream(t *testing.T, p *whisper.Provider) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	return h
}

func waitFinal(t *testing.T, h stt.SessionHandle) (stt.Transcript, bool) {
	t.Helper()
	select {
	case tr, ok := <-h.Finals():
		return tr, ok
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
	return stt.Transcript{}, false
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    []whisper.Option
		wantErr bool
	}{
		{name: "empty url", url: "", wantErr: true},
		{name: "valid url", url: "http://localhost:8080"},
		{
			name: "with options",
			url:  "http://localhost:8080/",
			opts: []whisper.Option{
				whisper.WithModel("small"),
				whisper.WithLanguage("de"),
				whisper.WithSampleRate(16000),
				whisper.WithSilenceThresholdMs(300),
				whisper.WithMaxBufferDurationMs(5000),
				whisper.WithHTTPClient(http.DefaultClient),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := whisper.New(tt.url, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && p == nil {
				t.Fatal("expected provider")
			}
		})
	}
}

func TestStartStream_CancelledContext(t *testing.T) {
	p, _ := whisper.New("http://localhost:8080")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSilenceAloneDoesNotTriggerInference(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "should not appear", &calls)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := startStream(t, p)

	for range 10 {
		if err := h.SendAudio(silencePCM(1600)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	_ = h.Close()
	if n := calls.Load(); n != 0 {
		t.Fatalf("inference calls = %d, want 0", n)
	}
}

func TestSpeechFollowedBySilenceProducesTranscript(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, " I led the migration. ", &calls)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(200))
	h := startStream(t, p)
	defer h.Close()

	_ = h.SendAudio(speechPCM(3200))
	_ = h.SendAudio(silencePCM(1600))
	_ = h.SendAudio(silencePCM(1600))

	tr, ok := waitFinal(t, h)
	if !ok {
		t.Fatal("finals closed before transcript")
	}
	if tr.Text != "I led the migration." || !tr.IsFinal {
		t.Fatalf("final = %+v", tr)
	}
	select {
	case p := <-h.Partials():
		if p.Text != tr.Text || p.IsFinal {
			t.Fatalf("partial = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("expected matching partial")
	}
	if calls.Load() != 1 {
		t.Fatalf("inference calls = %d, want 1", calls.Load())
	}
}

func TestMaxBufferForcesFlush(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "long answer", &calls)
	p, _ := whisper.New(srv.URL, whisper.WithMaxBufferDurationMs(200))
	h := startStream(t, p)
	defer h.Close()

	// 300 ms of uninterrupted speech exceeds the 200 ms cap.
	_ = h.SendAudio(speechPCM(4800))

	if tr, ok := waitFinal(t, h); !ok || tr.Text != "long answer" {
		t.Fatalf("final = %+v, ok=%v", tr, ok)
	}
}

func TestClose_FlushesPendingSpeech(t *testing.T) {
	srv := newMockServer(t, "cut short", nil)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(10_000))
	h := startStream(t, p)

	_ = h.SendAudio(speechPCM(1600))
	// Give the loop a chance to buffer the chunk.
	time.Sleep(50 * time.Millisecond)
	_ = h.Close()

	var got []string
	for tr := range h.Finals() {
		got = append(got, tr.Text)
	}
	if len(got) != 1 || got[0] != "cut short" {
		t.Fatalf("finals = %v", got)
	}
	if h.Err() != nil {
		t.Fatalf("Err = %v, want nil", h.Err())
	}
}

func TestClose_IdempotentAndRejectsAudio(t *testing.T) {
	srv := newMockServer(t, "", nil)
	p, _ := whisper.New(srv.URL)
	h := startStream(t, p)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := h.SendAudio(speechPCM(10)); err == nil {
		t.Fatal("expected error after Close")
	}
	if _, ok := <-h.Partials(); ok {
		t.Fatal("partials should be closed")
	}
}

func TestServerError_EndsSessionWithErr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := startStream(t, p)
	defer h.Close()

	_ = h.SendAudio(speechPCM(1600))
	_ = h.SendAudio(silencePCM(3200))

	if _, ok := waitFinal(t, h); ok {
		t.Fatal("expected finals to close without transcript")
	}
	if h.Err() == nil {
		t.Fatal("expected session error")
	}
	if err := h.SendAudio(speechPCM(10)); err == nil {
		t.Fatal("expected SendAudio to fail after session ended")
	}
}

func TestEmptyResponse_ProducesNoTranscript(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "", &calls)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := startStream(t, p)

	_ = h.SendAudio(speechPCM(1600))
	_ = h.SendAudio(silencePCM(3200))
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	_ = h.Close()

	for tr := range h.Finals() {
		t.Fatalf("unexpected transcript %+v", tr)
	}
}

func TestConcurrentSendAudio(t *testing.T) {
	srv := newMockServer(t, "ok", nil)
	p, _ := whisper.New(srv.URL)
	h := startStream(t, p)
	defer h.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_ = h.SendAudio(silencePCM(160))
			}
		}()
	}
	wg.Wait()
}
