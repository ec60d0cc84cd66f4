// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher of the mock interview call.
package config

import (
	"time"

	"github.com/MrWong99/mockinterview/pkg/interview"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultLanguage       = "en-US"
	DefaultPreferredVoice = "Samantha"
	DefaultServiceName    = "mockinterview"
)

// Config is the root configuration. Load it with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Interview InterviewConfig `yaml:"interview"`
	Call      CallConfig      `yaml:"call"`
	Providers ProvidersConfig `yaml:"providers"`
	Journal   JournalConfig   `yaml:"journal"`
	Notify    NotifyConfig    `yaml:"notify"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds the local HTTP endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr serves /healthz, /readyz and /metrics (e.g. ":9090"). Empty
	// disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// APIConfig points at the remote interview service.
type APIConfig struct {
	// BaseURL defaults to [interview.DefaultBaseURL].
	BaseURL string `yaml:"base_url"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token"`

	// Timeout bounds every request. Default: [interview.DefaultTimeout].
	Timeout time.Duration `yaml:"timeout"`
}

// InterviewConfig selects the session. Without SessionID a new session is
// started with the embedded settings.
type InterviewConfig struct {
	SessionID string `yaml:"session_id"`

	interview.Config `yaml:",inline"`
}

// CallConfig tunes the call itself.
type CallConfig struct {
	// StartVideo is the initial camera toggle.
	StartVideo bool `yaml:"start_video"`

	// AudioCapture records and uploads each user turn. Default: true.
	AudioCapture *bool `yaml:"audio_capture"`

	// Containers lists recording MIME types in order of preference.
	Containers []string `yaml:"containers"`

	RecorderFlushTimeout    time.Duration `yaml:"recorder_flush_timeout"`
	RecognitionRestartDelay time.Duration `yaml:"recognition_restart_delay"`

	// Language is the BCP-47 tag for recognition and voice selection.
	Language string `yaml:"language"`

	// PreferredVoice is matched against voice names, case-insensitively.
	PreferredVoice string `yaml:"preferred_voice"`

	// Captions shows the sentence being spoken. Default: true.
	Captions *bool `yaml:"captions"`
}

// AudioCaptureEnabled reports the effective AudioCapture setting.
func (c CallConfig) AudioCaptureEnabled() bool { return c.AudioCapture == nil || *c.AudioCapture }

// CaptionsEnabled reports the effective Captions setting.
func (c CallConfig) CaptionsEnabled() bool { return c.Captions == nil || *c.Captions }

// ProvidersConfig selects the backends resolved through the [Registry].
type ProvidersConfig struct {
	STT         ProviderEntry `yaml:"stt"`
	STTFallback ProviderEntry `yaml:"stt_fallback"`
	TTS         ProviderEntry `yaml:"tts"`
	Devices     ProviderEntry `yaml:"devices"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "deepgram").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// OptString returns Options[key] if it is a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptInt returns Options[key] if it is an integer.
func (e ProviderEntry) OptInt(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// JournalConfig selects the transcript journal.
type JournalConfig struct {
	// PostgresDSN enables the Postgres journal. Empty keeps the journal in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelemetryConfig names the service in traces and metrics.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}
