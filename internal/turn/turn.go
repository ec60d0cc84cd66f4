// Package turn implements the Turn Controller of the interview call: the
// state machine that decides who holds the floor.
//
// The [Controller] owns every piece of call state and runs a single event loop
// ([Controller.Run]). Recognition, playback, chat replies, device
// acquisitions and user commands all arrive in that loop as events, so state
// transitions are never concurrent. Slow work (device acquisition, chat
// requests, audio uploads, journal writes) runs on background goroutines that
// post their completion back into the loop.
//
// The floor moves JOINING → LISTENING → SENDING → AI_SPEAKING → LISTENING.
// User capture (recognition and recording) runs exactly when the state is
// LISTENING and the microphone toggle is on.
package turn

import (
	"context"
	"errors"

	"github.com/MrWong99/mockinterview/pkg/interview"
)

var (
	// ErrEmptyMessage is returned when a submission is blank after trimming.
	ErrEmptyMessage = errors.New("turn: message is empty")

	// ErrNotJoined is returned for submissions before the call was joined.
	ErrNotJoined = errors.New("turn: call not joined")

	// ErrNotListening is returned for submissions while the interviewer is
	// speaking.
	ErrNotListening = errors.New("turn: interviewer is speaking")

	// ErrBusy is returned for submissions while a chat request is
	// outstanding.
	ErrBusy = errors.New("turn: waiting for the interviewer's reply")

	// ErrAlreadyJoined is returned by Join after a successful join.
	ErrAlreadyJoined = errors.New("turn: call already joined")

	// ErrJoinInProgress is returned by Join while another join is running.
	ErrJoinInProgress = errors.New("turn: join in progress")

	// ErrClosed is returned once the controller has stopped.
	ErrClosed = errors.New("turn: controller closed")

	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("turn: controller already running")
)

// User-visible notices. Every other failure is only logged.
const (
	NoticePermissionDenied = "Camera and microphone access was denied. Allow access and join again."
	NoticeDeviceFailed     = "Could not open the camera or microphone. Check your devices and join again."
	NoticeMicBlocked       = "Microphone access was blocked. Turn the microphone back on to keep talking."
	NoticeStreamLost       = "Lost access to the microphone. Toggle the camera or microphone to retry."
)

// State is the turn state of the call.
type State int

const (
	StateJoining State = iota
	StateListening
	StateSending
	StateAISpeaking
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "JOINING"
	case StateListening:
		return "LISTENING"
	case StateSending:
		return "SENDING"
	case StateAISpeaking:
		return "AI_SPEAKING"
	}
	return "UNKNOWN"
}

// Source tells automatic speech submissions from manual ones.
type Source string

const (
	SourceSpeech Source = "speech"
	SourceManual Source = "manual"
)

// CaptionCursor is the playback position within the reply being spoken.
type CaptionCursor struct {
	FullText  string
	CharIndex int
}

// Snapshot is a consistent copy of the controller state. Messages must not be
// modified.
type Snapshot struct {
	State     State
	SessionID string
	Messages  []interview.Message

	// Input is the pending input buffer: typed text or the live interim
	// transcript.
	Input string

	MicOn   bool
	VideoOn bool

	// Busy is true while a chat request is outstanding.
	Busy bool

	// Completed is set once the service signalled the end of the interview.
	Completed bool

	// Caption is the sentence currently being spoken.
	Caption string
	Cursor  CaptionCursor

	Recognizing          bool
	RecognitionAvailable bool
	Recording            bool
	Speaking             bool

	// Notice is the last user-visible failure, if any.
	Notice string
}

// Chat sends one user turn to the interview service.
type Chat interface {
	Chat(ctx context.Context, sessionID, content string) (interview.Reply, error)
}

// Uploader uploads the recorded audio of one user turn.
type Uploader interface {
	UploadAudio(ctx context.Context, sessionID, filename, mimeType string, blob []byte) error
}

// Notifier shows a user-visible notice outside the call view.
type Notifier interface {
	Notify(title, message string) error
}

var (
	_ Chat     = (*interview.Client)(nil)
	_ Uploader = (*interview.Client)(nil)
)
