package app

import "github.com/MrWong99/mockinterview/pkg/interview"

// View is the presentation of the call state shown by front ends and served
// on /status.
type View struct {
	SessionID   string              `json:"session_id"`
	State       string              `json:"state"`
	Messages    []interview.Message `json:"messages"`
	Input       string              `json:"input,omitempty"`
	MicOn       bool                `json:"mic_on"`
	VideoOn     bool                `json:"video_on"`
	Busy        bool                `json:"busy"`
	Completed   bool                `json:"completed"`
	Caption     string              `json:"caption,omitempty"`
	Recognizing bool                `json:"recognizing"`
	Recording   bool                `json:"recording"`
	Speaking    bool                `json:"speaking"`
	Notice      string              `json:"notice,omitempty"`

	// Dictation is false when no speech recognition backend is configured.
	Dictation bool `json:"dictation"`

	// STTBackend names the recognition backend of the current session.
	STTBackend string `json:"stt_backend,omitempty"`
}

// View returns the current call state. The caption is blank while captions
// are turned off.
func (a *App) View() View {
	s := a.ctrl.Snapshot()
	v := View{
		SessionID:   s.SessionID,
		State:       s.State.String(),
		Messages:    s.Messages,
		Input:       s.Input,
		MicOn:       s.MicOn,
		VideoOn:     s.VideoOn,
		Busy:        s.Busy,
		Completed:   s.Completed,
		Recognizing: s.Recognizing,
		Recording:   s.Recording,
		Speaking:    s.Speaking,
		Notice:      s.Notice,
		Dictation:   s.RecognitionAvailable,
	}
	if a.stt != nil {
		v.STTBackend = a.stt.Serving()
	}
	if a.captions.Load() {
		v.Caption = s.Caption
	}
	return v
}

// CaptionsEnabled reports whether captions are shown.
func (a *App) CaptionsEnabled() bool { return a.captions.Load() }
