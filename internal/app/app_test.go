package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/mockinterview/internal/app"
	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/turn"
	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/journal"
	mediamock "github.com/MrWong99/mockinterview/pkg/media/mock"
	sttmock "github.com/MrWong99/mockinterview/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/mockinterview/pkg/provider/tts/mock"
)

// fakeAPI is an in-memory interview service.
type fakeAPI struct {
	mu       sync.Mutex
	startErr error
	starts   []interview.Config
	chats    []string
	uploads  []string
}

func (f *fakeAPI) Start(_ context.Context, cfg interview.Config) (interview.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, cfg)
	if f.startErr != nil {
		return interview.StartResult{}, f.startErr
	}
	return interview.StartResult{SessionID: "s-new", Message: "Welcome. Tell me about yourself."}, nil
}

func (f *fakeAPI) Chat(_ context.Context, _ string, content string) (interview.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, content)
	return interview.Reply{Message: "Thanks. What was your hardest bug?"}, nil
}

func (f *fakeAPI) UploadAudio(_ context.Context, _, filename, _ string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	return nil
}

func (f *fakeAPI) Feedback(_ context.Context, sessionID string) (interview.Feedback, error) {
	return interview.Feedback{Score: 8, Summary: "feedback for " + sessionID}, nil
}

func (f *fakeAPI) ExportPDF(_ context.Context, sessionID string, w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "%%PDF-1.4 %s", sessionID)
	return int64(n), err
}

func (f *fakeAPI) snapshot() (starts int, chats, uploads []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts), append([]string(nil), f.chats...), append([]string(nil), f.uploads...)
}

const newSessionYAML = `
interview:
  role: Backend Engineer
  experience_level: Senior
  company: Acme
call:
  containers: ["audio/wav"]
  recognition_restart_delay: 10ms
`

func loadConfig(t *testing.T, y string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(y))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

type fixture struct {
	app     *app.App
	api     *fakeAPI
	stt     *sttmock.Provider
	tts     *ttsmock.Provider
	speaker *mediamock.Speaker
	journal *journal.MemStore
	closed  chan struct{}
}

func newFixture(t *testing.T, y string, opts ...app.Option) *fixture {
	t.Helper()
	f := &fixture{
		api:     &fakeAPI{},
		stt:     &sttmock.Provider{},
		tts:     &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 640)}},
		speaker: &mediamock.Speaker{},
		journal: &journal.MemStore{},
		closed:  make(chan struct{}),
	}
	providers := &app.Providers{
		STT: f.stt,
		TTS: f.tts,
		Devices: config.DeviceBackend{
			Devices: &mediamock.Devices{},
			Preview: &mediamock.Preview{},
			Speaker: f.speaker,
			Close:   func() error { close(f.closed); return nil },
		},
	}
	opts = append([]app.Option{app.WithAPI(f.api), app.WithJournal(f.journal)}, opts...)
	a, err := app.New(context.Background(), loadConfig(t, y), providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.app = a
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_StartsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, newSessionYAML)
	starts, _, _ := f.api.snapshot()
	if starts != 1 || f.app.SessionID() != "s-new" {
		t.Fatalf("starts = %d, session = %q", starts, f.app.SessionID())
	}
	if f.api.starts[0].Role != "Backend Engineer" || f.api.starts[0].Language != "en-US" {
		t.Fatalf("start config = %+v", f.api.starts[0])
	}
	v := f.app.View()
	if v.State != "JOINING" || !v.MicOn || !v.Dictation {
		t.Fatalf("view = %+v", v)
	}
}

func TestNew_ResumesSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "interview:\n  session_id: s-old\n")
	if starts, _, _ := f.api.snapshot(); starts != 0 {
		t.Fatalf("Start called %d times", starts)
	}
	if f.app.SessionID() != "s-old" {
		t.Fatalf("session = %q", f.app.SessionID())
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	cfg := loadConfig(t, newSessionYAML)

	if _, err := app.New(context.Background(), cfg, &app.Providers{}); err == nil {
		t.Error("expected error without devices")
	}

	closed := false
	boom := errors.New("service down")
	_, err := app.New(context.Background(), cfg, &app.Providers{
		Devices: config.DeviceBackend{
			Devices: &mediamock.Devices{},
			Close:   func() error { closed = true; return nil },
		},
	}, app.WithAPI(&fakeAPI{startErr: boom}))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !closed {
		t.Error("device backend should be closed when New fails")
	}

	_, err = app.New(context.Background(), loadConfig(t, "interview:\n  session_id: s\n"), &app.Providers{
		TTS:     &ttsmock.Provider{},
		Devices: config.DeviceBackend{Devices: &mediamock.Devices{}},
	}, app.WithAPI(&fakeAPI{}))
	if err == nil {
		t.Error("expected error for tts without speaker")
	}
}

func TestRun_Conversation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, newSessionYAML)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- f.app.Run(ctx) }()

	ctrl := f.app.Controller()
	if err := ctrl.Join(ctx); err != nil {
		t.Fatalf("Join: %v", err)
	}

	// The greeting is spoken, then the floor returns to the candidate.
	waitFor(t, "greeting playback", func() bool { return f.speaker.PlayedBytes() > 0 })
	waitFor(t, "listening", func() bool { return ctrl.Snapshot().State == turn.StateListening })
	waitFor(t, "recognition session", func() bool { return f.stt.LastSession() != nil })
	waitFor(t, "stt backend in view", func() bool { return f.app.View().STTBackend == "stt" })
	f.stt.LastSession().EmitFinal("I mostly build APIs in Go.")

	waitFor(t, "chat request", func() bool {
		_, chats, _ := f.api.snapshot()
		return len(chats) == 1
	})
	waitFor(t, "reply spoken", func() bool {
		s := ctrl.Snapshot()
		return s.State == turn.StateListening && len(s.Messages) == 3
	})

	_, chats, uploads := f.api.snapshot()
	if chats[0] != "I mostly build APIs in Go." {
		t.Errorf("chat = %q", chats[0])
	}
	waitFor(t, "upload", func() bool {
		_, _, uploads = f.api.snapshot()
		return len(uploads) == 1
	})
	if uploads[0] != "turn-001.wav" {
		t.Errorf("uploads = %v", uploads)
	}

	waitFor(t, "journal", func() bool {
		entries, _ := f.journal.List(ctx, "s-new")
		return len(entries) == 3
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := f.app.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
	select {
	case <-f.closed:
	default:
		t.Fatal("device backend was not closed")
	}

	// Every goroutine has stopped, the mock can be read directly.
	if kw := f.stt.StartStreamCalls[0].Cfg.Keywords; len(kw) == 0 || kw[0].Keyword != "Acme" {
		t.Errorf("keywords = %+v", kw)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "interview:\n  session_id: s\n")
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- f.app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdown_WithoutRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "interview:\n  session_id: s\n")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := f.app.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "interview:\n  session_id: s-http\n", app.WithPrometheus(prometheus.NewRegistry()))
	srv := httptest.NewServer(f.app.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var v app.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.SessionID != "s-http" || v.State != "JOINING" {
		t.Fatalf("status = %+v", v)
	}
}

func TestReload(t *testing.T) {
	t.Parallel()
	level := new(slog.LevelVar)
	f := newFixture(t, "interview:\n  session_id: s\n", app.WithLevelVar(level))
	old := loadConfig(t, "interview:\n  session_id: s\n")
	updated := loadConfig(t, "interview:\n  session_id: s\nserver:\n  log_level: debug\ncall:\n  captions: false\n  preferred_voice: Daniel\n")

	if !f.app.CaptionsEnabled() {
		t.Fatal("captions should start enabled")
	}
	f.app.Reload(config.Diff(old, updated))
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v", level.Level())
	}
	if f.app.CaptionsEnabled() {
		t.Error("captions should be disabled")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestReport(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "interview:\n  session_id: s-rep\n")
	fb, err := f.app.Feedback(context.Background())
	if err != nil || fb.Score != 8 || !strings.Contains(fb.Summary, "s-rep") {
		t.Fatalf("Feedback = %+v, %v", fb, err)
	}
	var buf strings.Builder
	n, err := f.app.ExportReport(context.Background(), &buf)
	if err != nil || n == 0 || !strings.HasPrefix(buf.String(), "%PDF") {
		t.Fatalf("ExportReport = %d %q %v", n, buf.String(), err)
	}
}
