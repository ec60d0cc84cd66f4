package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/mockinterview/internal/config"
)

func mustLoad(t *testing.T, y string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(y))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()
	base := "interview:\n  session_id: s\n"
	tests := []struct {
		name  string
		after string
		check func(t *testing.T, d config.ConfigDiff)
	}{
		{"no changes", base, func(t *testing.T, d config.ConfigDiff) {
			if !d.Empty() {
				t.Errorf("diff = %+v", d)
			}
		}},
		{"log level", base + "server:\n  log_level: warn\n", func(t *testing.T, d config.ConfigDiff) {
			if !d.LogLevelChanged || d.NewLogLevel != config.LogWarn || d.VoiceChanged {
				t.Errorf("diff = %+v", d)
			}
		}},
		{"voice", base + "call:\n  preferred_voice: Daniel\n", func(t *testing.T, d config.ConfigDiff) {
			if !d.VoiceChanged || d.NewVoice != "Daniel" || d.NewLanguage != "en-US" {
				t.Errorf("diff = %+v", d)
			}
		}},
		{"captions off", base + "call:\n  captions: false\n", func(t *testing.T, d config.ConfigDiff) {
			if !d.CaptionsChanged || d.NewCaptions {
				t.Errorf("diff = %+v", d)
			}
		}},
		{"notify", base + "notify:\n  enabled: true\n", func(t *testing.T, d config.ConfigDiff) {
			if !d.NotifyChanged || !d.NewNotify || !d.Live() || len(d.RestartRequired) != 0 {
				t.Errorf("diff = %+v", d)
			}
		}},
		{"language only", base + "call:\n  language: de-DE\n", func(t *testing.T, d config.ConfigDiff) {
			if !d.VoiceChanged || d.NewLanguage != "de-DE" || len(d.RestartRequired) != 0 {
				t.Errorf("diff = %+v", d)
			}
		}},
		{"capture settings", base + "call:\n  containers: [audio/wav]\n", func(t *testing.T, d config.ConfigDiff) {
			if d.Live() || !slices.Equal(d.RestartRequired, []string{"call"}) {
				t.Errorf("diff = %+v", d)
			}
		}},
		{"provider options", base + "providers:\n  tts:\n    name: elevenlabs\n    options:\n      voice_id: a\n", func(t *testing.T, d config.ConfigDiff) {
			if !slices.Contains(d.RestartRequired, "providers") {
				t.Errorf("RestartRequired = %v", d.RestartRequired)
			}
		}},
		{"restart sections", "interview:\n  session_id: other\napi:\n  token: t\nproviders:\n  stt:\n    name: whisper\n", func(t *testing.T, d config.ConfigDiff) {
			for _, s := range []string{"api", "interview", "providers"} {
				if !slices.Contains(d.RestartRequired, s) {
					t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, s)
				}
			}
			if d.Empty() {
				t.Error("diff should not be empty")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, config.Diff(mustLoad(t, base), mustLoad(t, tt.after)))
		})
	}
}
