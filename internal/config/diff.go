package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Settings that can be
// applied to a running call get their own fields; everything else is listed
// by section in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged bool
	NewVoice     string
	NewLanguage  string

	CaptionsChanged bool
	NewCaptions     bool

	NotifyChanged bool
	NewNotify     bool

	// RestartRequired lists top-level sections that changed but only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.Live() && len(d.RestartRequired) == 0
}

// Live reports whether any hot-reloadable setting changed.
func (d ConfigDiff) Live() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.CaptionsChanged || d.NotifyChanged
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Call.PreferredVoice != new.Call.PreferredVoice || old.Call.Language != new.Call.Language {
		d.VoiceChanged = true
		d.NewVoice = new.Call.PreferredVoice
		d.NewLanguage = new.Call.Language
	}
	if old.Call.CaptionsEnabled() != new.Call.CaptionsEnabled() {
		d.CaptionsChanged = true
		d.NewCaptions = new.Call.CaptionsEnabled()
	}
	if old.Notify.Enabled != new.Notify.Enabled {
		d.NotifyChanged = true
		d.NewNotify = new.Notify.Enabled
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("api", old.API != new.API)
	restart("interview", !sameInterview(old.Interview, new.Interview))
	restart("call", !sameCapture(old.Call, new.Call))
	restart("providers", !sameProviders(old.Providers, new.Providers))
	restart("journal", old.Journal != new.Journal)
	restart("telemetry", old.Telemetry != new.Telemetry)

	return d
}

// sameInterview ignores the language, which follows call.language and is
// reported as a voice change.
func sameInterview(a, b InterviewConfig) bool {
	a.Language, b.Language = "", ""
	return a == b
}

func sameCapture(a, b CallConfig) bool {
	return a.StartVideo == b.StartVideo &&
		a.AudioCaptureEnabled() == b.AudioCaptureEnabled() &&
		slices.Equal(a.Containers, b.Containers) &&
		a.RecorderFlushTimeout == b.RecorderFlushTimeout &&
		a.RecognitionRestartDelay == b.RecognitionRestartDelay
}

func sameProviders(a, b ProvidersConfig) bool {
	same := func(x, y ProviderEntry) bool {
		return x.Name == y.Name && x.APIKey == y.APIKey && x.BaseURL == y.BaseURL && x.Model == y.Model &&
			maps.EqualFunc(x.Options, y.Options, func(v, w any) bool { return reflect.DeepEqual(v, w) })
	}
	return same(a.STT, b.STT) && same(a.STTFallback, b.STTFallback) && same(a.TTS, b.TTS) && same(a.Devices, b.Devices)
}
