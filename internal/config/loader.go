package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/media/container"
)

// ValidProviderNames lists the built-in provider names per kind. Unknown names
// only produce a warning since third-party factories may be registered.
var ValidProviderNames = map[string][]string{
	"stt":     {"deepgram", "whisper"},
	"tts":     {"elevenlabs"},
	"devices": {"local"},
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = interview.DefaultBaseURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = interview.DefaultTimeout
	}
	if cfg.Call.Language == "" {
		cfg.Call.Language = DefaultLanguage
	}
	if cfg.Call.PreferredVoice == "" {
		cfg.Call.PreferredVoice = DefaultPreferredVoice
	}
	if cfg.Interview.Language == "" {
		cfg.Interview.Language = cfg.Call.Language
	}
	if cfg.Providers.Devices.Name == "" {
		cfg.Providers.Devices.Name = "local"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", cfg.API.BaseURL))
	}
	if cfg.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("api.timeout %s must not be negative", cfg.API.Timeout))
	}

	if cfg.Interview.SessionID == "" {
		if cfg.Interview.Role == "" {
			errs = append(errs, errors.New("interview.role is required when interview.session_id is empty"))
		}
		if cfg.Interview.ExperienceLevel == "" {
			errs = append(errs, errors.New("interview.experience_level is required when interview.session_id is empty"))
		}
	}
	if cfg.Interview.InterviewType != "" && !slices.Contains(interviewTypes, cfg.Interview.InterviewType) {
		errs = append(errs, fmt.Errorf("interview.interview_type %q is invalid; valid values: %v", cfg.Interview.InterviewType, interviewTypes))
	}
	if cfg.Interview.TimePerQuestion < 0 || cfg.Interview.MaxQuestions < 0 {
		errs = append(errs, errors.New("interview.time_per_question and interview.max_questions must not be negative"))
	}

	if cfg.Call.RecorderFlushTimeout < 0 {
		errs = append(errs, fmt.Errorf("call.recorder_flush_timeout %s must not be negative", cfg.Call.RecorderFlushTimeout))
	}
	if cfg.Call.RecognitionRestartDelay < 0 {
		errs = append(errs, fmt.Errorf("call.recognition_restart_delay %s must not be negative", cfg.Call.RecognitionRestartDelay))
	}
	if len(cfg.Call.Containers) > 0 && container.Select(cfg.Call.Containers) == container.Fallback &&
		!slices.ContainsFunc(cfg.Call.Containers, func(m string) bool { return strings.EqualFold(m, container.Fallback) }) {
		slog.Warn("config: none of call.containers is supported, recording as fallback",
			"containers", cfg.Call.Containers, "fallback", container.Fallback)
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("devices", cfg.Providers.Devices.Name)
	if cfg.Providers.STTFallback.Name != "" && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallback requires providers.stt"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("config: providers.stt is not configured; the call falls back to typed answers")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("config: providers.tts is not configured; replies are shown but not spoken")
	}

	return errors.Join(errs...)
}

var interviewTypes = []string{
	interview.TypeBehavioral,
	interview.TypeTechnical,
	interview.TypeSystemDesign,
	interview.TypeCaseStudy,
	interview.TypeMixed,
}

func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known := ValidProviderNames[kind]
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or a third-party provider",
		"kind", kind, "name", name, "known", known)
}
