// Command mockinterview runs one live mock interview call in the terminal,
// using the local microphone, camera and speaker.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mockinterview/internal/app"
	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/notify"
	"github.com/MrWong99/mockinterview/internal/observe"
	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/media/local"
	"github.com/MrWong99/mockinterview/pkg/provider/stt"
	"github.com/MrWong99/mockinterview/pkg/provider/stt/deepgram"
	"github.com/MrWong99/mockinterview/pkg/provider/stt/whisper"
	"github.com/MrWong99/mockinterview/pkg/provider/tts"
	"github.com/MrWong99/mockinterview/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	reportPath := flag.String("report", "", "write the PDF report of the session to this path after the call")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mockinterview: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mockinterview: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("mockinterview starting",
		"config", *configPath,
		"api", cfg.API.BaseURL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Registry:    promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	notifier := notify.New(cfg.Notify.Enabled)
	application, err := app.New(ctx, cfg, providers,
		app.WithNotifier(notifier),
		app.WithLevelVar(level),
		app.WithPrometheus(promReg),
	)
	if err != nil {
		slog.Error("failed to initialise call", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_ *config.Config, d config.ConfigDiff) {
		application.Reload(d)
		if d.NotifyChanged {
			notifier.SetEnabled(d.NewNotify)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		wctx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go watcher.Run(wctx)
	}

	// ── Call ──────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	g.Go(func() error {
		return newConsole(application.Controller(), application.View, os.Stdin, os.Stdout).Run(gctx)
	})
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("call error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	// ── Report ────────────────────────────────────────────────────────────────
	if ctx.Err() == nil {
		if err := report(shutdownCtx, application, *reportPath); err != nil {
			slog.Warn("report unavailable", "err", err)
		}
		if application.View().Completed {
			_ = notifier.Ended(application.SessionID())
		}
	}

	slog.Info("goodbye", "session_id", application.SessionID())
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	return 0
}

// report prints the session feedback and, with a path, saves the PDF report.
func report(ctx context.Context, application *app.App, path string) error {
	fb, err := application.Feedback(ctx)
	if err != nil {
		return err
	}
	printFeedback(fb)

	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	n, err := application.ExportReport(ctx, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	slog.Info("report saved", "path", path, "bytes", n)
	return nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := entry.OptInt("sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := entry.OptInt("silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Devices ───────────────────────────────────────────────────────────────

	reg.RegisterDevices("local", func(entry config.ProviderEntry) (config.DeviceBackend, error) {
		d, err := local.New(local.Config{
			SampleRate:  entry.OptInt("sample_rate"),
			CameraIndex: entry.OptInt("camera_index"),
			CameraFPS:   entry.OptInt("camera_fps"),
		})
		if err != nil {
			return config.DeviceBackend{}, err
		}
		preview := local.NewPreview(cmp.Or(entry.OptString("preview_title"), "Mock interview"))
		speaker := d.Speaker()
		return config.DeviceBackend{
			Devices: d,
			Preview: preview,
			Speaker: speaker,
			Close: func() error {
				return errors.Join(preview.Close(), speaker.Close(), d.Close())
			},
		}, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry.
// Speech providers are optional; the device backend is required.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	var err error
	if ps.STT, err = createOptional(cfg.Providers.STT, "stt", reg.CreateSTT); err != nil {
		return nil, err
	}
	if ps.STTFallback, err = createOptional(cfg.Providers.STTFallback, "stt_fallback", reg.CreateSTT); err != nil {
		return nil, err
	}
	if ps.TTS, err = createOptional(cfg.Providers.TTS, "tts", reg.CreateTTS); err != nil {
		return nil, err
	}

	ps.Devices, err = reg.CreateDevices(cfg.Providers.Devices)
	if err != nil {
		return nil, fmt.Errorf("create devices %q: %w", cfg.Providers.Devices.Name, err)
	}
	slog.Info("provider created", "kind", "devices", "name", cfg.Providers.Devices.Name)
	return ps, nil
}

func createOptional[T any](entry config.ProviderEntry, kind string, create func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := create(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      Mock interview: startup summary  ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	if cfg.Interview.SessionID != "" {
		printRow("Session", cfg.Interview.SessionID)
	} else {
		printRow("Role", cfg.Interview.Role)
		printRow("Level", cfg.Interview.ExperienceLevel)
		printRow("Type", cfg.Interview.InterviewType)
	}
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("STT fallback", cfg.Providers.STTFallback.Name, cfg.Providers.STTFallback.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Devices", cfg.Providers.Devices.Name, "")
	printRow("Voice", cfg.Call.PreferredVoice+" ("+cfg.Call.Language+")")
	if cfg.Journal.PostgresDSN != "" {
		printRow("Journal", "postgres")
	} else {
		printRow("Journal", "memory")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(label, name, model string) {
	switch {
	case name == "":
		printRow(label, "(not configured)")
	case model != "":
		printRow(label, name+"/"+model)
	default:
		printRow(label, name)
	}
}

func printRow(label, value string) {
	if value == "" {
		value = "-"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

func printFeedback(fb interview.Feedback) {
	fmt.Println()
	fmt.Printf("Overall score: %.1f/10\n", fb.Score)
	if fb.Summary != "" {
		fmt.Println(fb.Summary)
	}
	printList("Strengths", fb.Strengths)
	printList("Improvements", fb.Improvements)
	if vm := fb.VoiceMetrics; vm != nil {
		fmt.Printf("Pace: %.0f words/min (%s), filler words: %d\n", vm.WordsPerMinute, vm.PaceRating, vm.FillerWordCount)
	}
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s:\n  - %s\n", title, strings.Join(items, "\n  - "))
}
