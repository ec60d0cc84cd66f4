// Package app wires the interview call together from configuration.
//
// The App owns the full lifecycle: New resolves the session and builds every
// adapter around the Turn Controller, Run executes the controller loop and the
// local HTTP endpoint, and Shutdown tears everything down in order.
//
// For testing, inject doubles through functional options (WithAPI,
// WithJournal, ...). Options that are not provided are created from config.
package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/device"
	"github.com/MrWong99/mockinterview/internal/health"
	"github.com/MrWong99/mockinterview/internal/observe"
	"github.com/MrWong99/mockinterview/internal/playback"
	"github.com/MrWong99/mockinterview/internal/recognition"
	"github.com/MrWong99/mockinterview/internal/recorder"
	"github.com/MrWong99/mockinterview/internal/resilience"
	"github.com/MrWong99/mockinterview/internal/turn"
	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/journal"
	"github.com/MrWong99/mockinterview/pkg/journal/postgres"
	"github.com/MrWong99/mockinterview/pkg/provider/stt"
	"github.com/MrWong99/mockinterview/pkg/provider/tts"
	"github.com/MrWong99/mockinterview/pkg/speech"
	"github.com/MrWong99/mockinterview/pkg/speech/pipeline"
)

// shutdownTimeout bounds the HTTP server drain once the call ends.
const shutdownTimeout = 5 * time.Second

// API is the subset of the interview service the app talks to.
type API interface {
	Start(ctx context.Context, cfg interview.Config) (interview.StartResult, error)
	Chat(ctx context.Context, sessionID, content string) (interview.Reply, error)
	UploadAudio(ctx context.Context, sessionID, filename, mimeType string, blob []byte) error
	Feedback(ctx context.Context, sessionID string) (interview.Feedback, error)
	ExportPDF(ctx context.Context, sessionID string, w io.Writer) (int64, error)
}

var _ API = (*interview.Client)(nil)

// Providers holds the speech backends and devices resolved through the config
// registry. Nil speech providers disable the matching feature.
type Providers struct {
	STT         stt.Provider
	STTFallback stt.Provider
	TTS         tts.Provider
	Devices     config.DeviceBackend
}

// App owns every subsystem of one interview call.
type App struct {
	cfg       *config.Config
	providers *Providers

	api       API
	journal   journal.Store
	notifier  turn.Notifier
	metrics   *observe.Metrics
	level     *slog.LevelVar
	promReg   *prometheus.Registry
	sessionID string
	greeting  string
	captions  atomic.Bool
	started   atomic.Bool

	devices  *device.Manager
	recog    *recognition.Adapter
	play     *playback.Engine
	rec      *recorder.Recorder
	uploader *resilience.GuardedUploader
	stt      *resilience.STTFallback
	ctrl     *turn.Controller
	checkers []health.Checker
	handler  http.Handler

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithAPI injects the interview service client.
func WithAPI(api API) Option {
	return func(a *App) { a.api = api }
}

// WithJournal injects a journal instead of creating one from config.
func WithJournal(s journal.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithNotifier sets the desktop notifier.
func WithNotifier(n turn.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithPrometheus serves reg on /metrics instead of the default gatherer.
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(a *App) { a.promReg = reg }
}

// New resolves the interview session and builds the call. Without a
// configured session ID a new session is started on the service. The device
// backend is owned by the App from here on, even when New fails.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.captions.Store(cfg.Call.CaptionsEnabled())

	if providers == nil || providers.Devices.Devices == nil {
		return nil, errors.New("app: a device backend is required")
	}
	if c := providers.Devices.Close; c != nil {
		a.closers = append(a.closers, c)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"api", a.initAPI},
		{"journal", a.initJournal},
		{"session", a.initSession},
		{"devices", a.initDevices},
		{"speech", a.initSpeech},
		{"recorder", a.initRecorder},
		{"controller", a.initController},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			_ = a.runClosers(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}
	a.initHTTP()
	return a, nil
}

func (a *App) initAPI(context.Context) error {
	if a.api != nil {
		return nil
	}
	c, err := interview.New(a.cfg.API.BaseURL,
		interview.WithToken(a.cfg.API.Token),
		interview.WithTimeout(a.cfg.API.Timeout),
	)
	if err != nil {
		return err
	}
	a.api = c
	a.checkers = append(a.checkers, health.Checker{Name: "api", Check: a.apiReachable})
	return nil
}

// apiReachable treats any HTTP answer as reachable; only transport failures
// fail the check.
func (a *App) apiReachable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.API.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	if a.cfg.Journal.PostgresDSN == "" {
		a.journal = &journal.MemStore{}
		return nil
	}
	store, err := postgres.NewStore(ctx, a.cfg.Journal.PostgresDSN)
	if err != nil {
		return err
	}
	a.journal = store
	a.checkers = append(a.checkers, health.PingChecker("journal", store))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

func (a *App) initSession(ctx context.Context) error {
	a.sessionID = a.cfg.Interview.SessionID
	if a.sessionID != "" {
		slog.Info("app: resuming interview session", "session_id", a.sessionID)
		return nil
	}
	res, err := a.api.Start(ctx, a.cfg.Interview.Config)
	if err != nil {
		return err
	}
	a.sessionID = res.SessionID
	a.greeting = strings.TrimSpace(res.Message)
	slog.Info("app: interview session started",
		"session_id", a.sessionID,
		"role", a.cfg.Interview.Role,
		"type", a.cfg.Interview.InterviewType,
	)
	return nil
}

func (a *App) initDevices(context.Context) error {
	b := a.providers.Devices
	a.devices = device.New(b.Devices, b.Preview)
	a.closers = append(a.closers, a.devices.Close)
	return nil
}

func (a *App) initSpeech(context.Context) error {
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: a.logBreaker},
		Metrics:        a.metrics,
	}

	var rec speech.Recognizer
	if p := a.providers.STT; p != nil {
		group := resilience.NewSTTFallback(p, cmp.Or(a.cfg.Providers.STT.Name, "stt"), fcfg)
		if fb := a.providers.STTFallback; fb != nil {
			group.AddFallback(cmp.Or(a.cfg.Providers.STTFallback.Name, "stt_fallback"), fb)
		}
		a.stt = group
		rec = pipeline.NewRecognizer(group, a.devices, pipeline.WithKeywords(a.keywords()...))
	}
	a.recog = recognition.New(rec, a.cfg.Call.Language)
	a.closers = append(a.closers, a.recog.Close)

	var synth speech.Synthesizer
	if p := a.providers.TTS; p != nil {
		if a.providers.Devices.Speaker == nil {
			return errors.New("tts is configured but the device backend has no speaker")
		}
		group := resilience.NewTTSFallback(p, cmp.Or(a.cfg.Providers.TTS.Name, "tts"), fcfg)
		var opts []pipeline.SynthesizerOption
		if id := a.cfg.Providers.TTS.OptString("voice_id"); id != "" {
			opts = append(opts, pipeline.WithDefaultVoice(id))
		}
		synth = pipeline.NewSynthesizer(group, a.providers.Devices.Speaker, opts...)
	}
	a.play = playback.New(synth,
		playback.WithPreferredVoice(a.cfg.Call.PreferredVoice),
		playback.WithLanguage(a.cfg.Call.Language),
	)
	a.closers = append(a.closers, a.play.Close)
	return nil
}

// keywords boosts the interview vocabulary in recognition.
func (a *App) keywords() []stt.KeywordBoost {
	var kw []stt.KeywordBoost
	for _, w := range []string{a.cfg.Interview.Company, a.cfg.Interview.Topic, a.cfg.Interview.Role} {
		if w = strings.TrimSpace(w); w != "" && !slices.ContainsFunc(kw, func(k stt.KeywordBoost) bool { return k.Keyword == w }) {
			kw = append(kw, stt.KeywordBoost{Keyword: w, Boost: 2})
		}
	}
	return kw
}

func (a *App) initRecorder(context.Context) error {
	if !a.cfg.Call.AudioCaptureEnabled() {
		slog.Info("app: audio capture disabled")
		return nil
	}
	var opts []recorder.Option
	if len(a.cfg.Call.Containers) > 0 {
		opts = append(opts, recorder.WithPreferences(a.cfg.Call.Containers...))
	}
	if d := a.cfg.Call.RecorderFlushTimeout; d > 0 {
		opts = append(opts, recorder.WithFlushTimeout(d))
	}
	a.rec = recorder.New(a.devices, opts...)
	a.uploader = resilience.NewGuardedUploader(a.api, resilience.CircuitBreakerConfig{
		Name:          "upload",
		OnStateChange: a.logBreaker,
	})
	a.checkers = append(a.checkers, health.BreakerChecker("upload", a.uploader))
	return nil
}

func (a *App) initController(context.Context) error {
	cfg := turn.Config{
		SessionID:    a.sessionID,
		Greeting:     a.greeting,
		Devices:      a.devices,
		Recognition:  a.recog,
		Playback:     a.play,
		Chat:         a.api,
		Journal:      a.journal,
		Notifier:     a.notifier,
		Metrics:      a.metrics,
		StartVideo:   a.cfg.Call.StartVideo,
		RestartDelay: a.cfg.Call.RecognitionRestartDelay,
	}
	if a.rec != nil {
		cfg.Recorder = a.rec
		cfg.Uploader = a.uploader
	}
	ctrl, err := turn.New(cfg)
	if err != nil {
		return err
	}
	a.ctrl = ctrl
	a.checkers = append(a.checkers, health.CallChecker(ctrl.Done()))
	return nil
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()
	health.New(a.checkers, health.WithStatus(func() any { return a.View() })).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(a.promReg))
	a.handler = observe.Middleware(a.metrics)(mux)
}

func (a *App) logBreaker(name string, from, to resilience.State) {
	slog.Warn("app: circuit breaker state changed", "breaker", name, "from", from, "to", to)
}

// SessionID returns the interview session of the call.
func (a *App) SessionID() string { return a.sessionID }

// Controller returns the Turn Controller driving the call.
func (a *App) Controller() *turn.Controller { return a.ctrl }

// Journal returns the transcript journal.
func (a *App) Journal() journal.Store { return a.journal }

// Handler serves /healthz, /readyz, /status and /metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Run executes the call until ctx is cancelled or the call is ended. When
// server.listen_addr is set the health and metrics endpoints are served for
// the same duration.
func (a *App) Run(ctx context.Context) error {
	a.started.Store(true)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.ctrl.Run(gctx)
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("app: serving health and metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve %s: %w", addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// Reload applies the hot-reloadable parts of a configuration change reported
// by a [config.Watcher].
func (a *App) Reload(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		a.play.SetVoicePreference(d.NewVoice, d.NewLanguage)
		a.recog.SetLanguage(d.NewLanguage)
		slog.Info("app: voice preference changed", "voice", d.NewVoice, "language", d.NewLanguage)
	}
	if d.CaptionsChanged {
		a.captions.Store(d.NewCaptions)
		slog.Info("app: captions toggled", "enabled", d.NewCaptions)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: configuration changes need a restart", "sections", d.RestartRequired)
	}
}

// ParseLevel maps a config log level to a slog level.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Feedback fetches the evaluation of the session.
func (a *App) Feedback(ctx context.Context) (interview.Feedback, error) {
	return a.api.Feedback(ctx, a.sessionID)
}

// ExportReport writes the PDF report of the session to w.
func (a *App) ExportReport(ctx context.Context, w io.Writer) (int64, error) {
	return a.api.ExportPDF(ctx, a.sessionID, w)
}

// Shutdown ends the call and tears down all subsystems in reverse-init order.
// Remaining closers are skipped once ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.started.Load() {
			if endErr := a.ctrl.End(ctx); endErr != nil && !errors.Is(endErr, turn.ErrClosed) {
				slog.Warn("app: end call", "err", endErr)
			}
		}
		err = a.runClosers(ctx)
		slog.Info("app: shutdown complete")
	})
	return err
}

func (a *App) runClosers(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
			return errors.Join(append(errs, ctx.Err())...)
		}
		if err := a.closers[i](); err != nil {
			slog.Warn("app: closer failed", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
