package interview_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mockinterview/pkg/interview"
)

func newClient(t *testing.T, h http.HandlerFunc, opts ...interview.Option) *interview.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := interview.New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"", false},
		{"http://localhost:8000/", false},
		{"not a url", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		_, err := interview.New(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) err = %v, wantErr %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestStart(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/interview/start" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Config interview.Config `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Config.Role != "Backend Engineer" {
			http.Error(w, "bad config", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"session_id":"s-1","message":"Welcome! Tell me about yourself."}`))
	})

	res, err := c.Start(context.Background(), interview.Config{Role: "Backend Engineer", ExperienceLevel: "Senior"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.SessionID != "s-1" || !strings.HasPrefix(res.Message, "Welcome") {
		t.Fatalf("result = %+v", res)
	}
}

func TestStart_MissingSessionID(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := c.Start(context.Background(), interview.Config{}); err == nil {
		t.Fatal("expected error for missing session_id")
	}
}

func TestChat(t *testing.T) {
	var gotAuth string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/api/interview/chat" || body["session_id"] != "s-1" || body["content"] != "I have three years of experience" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"message":"Great, tell me about a project.","is_interview_ended":false}`))
	}, interview.WithToken("tok"))

	reply, err := c.Chat(context.Background(), "s-1", "I have three years of experience")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Message != "Great, tell me about a project." || reply.IsInterviewEnded {
		t.Fatalf("reply = %+v", reply)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestChat_APIError(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		unauthorized bool
	}{
		{"not found", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"server error", http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"Session not found"}`, tt.status)
			})
			_, err := c.Chat(context.Background(), "missing", "hi")
			var apiErr *interview.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want APIError", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Unauthorized() != tt.unauthorized {
				t.Fatalf("APIError = %+v", apiErr)
			}
			if !strings.Contains(apiErr.Body, "Session not found") {
				t.Fatalf("body = %q", apiErr.Body)
			}
		})
	}
}

func TestChat_Timeout(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"message":"late"}`))
	}, interview.WithTimeout(20*time.Millisecond))
	if _, err := c.Chat(context.Background(), "s", "hi"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestUploadAudio(t *testing.T) {
	blob := []byte("OggS-fake-audio")
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/interview/s-1/upload-audio" {
			http.NotFound(w, r)
			return
		}
		f, hdr, err := r.FormFile("blob")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got, _ := io.ReadAll(f)
		if !bytes.Equal(got, blob) || hdr.Filename != "turn-1.ogg" || hdr.Header.Get("Content-Type") != "audio/ogg;codecs=opus" {
			http.Error(w, "unexpected part", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if err := c.UploadAudio(context.Background(), "s-1", "turn-1.ogg", "audio/ogg;codecs=opus", blob); err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
}

func TestFeedback(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"score": 7.5,
			"summary": "Solid answers.",
			"strengths": ["clarity"],
			"improvements": ["depth"],
			"communication_score": 8,
			"technical_score": 7,
			"problem_solving_score": 7,
			"culture_fit_score": 8,
			"improvement_tips": ["use STAR"],
			"voice_metrics": {"words_per_minute": 140, "filler_word_count": 3, "pace_rating": "good"},
			"transcript": [{"role": "model", "content": "Hi"}, {"role": "user", "content": "Hello"}]
		}`))
	})
	fb, err := c.Feedback(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if fb.Score != 7.5 || fb.VoiceMetrics == nil || fb.VoiceMetrics.FillerWordCount != 3 || len(fb.Transcript) != 2 {
		t.Fatalf("feedback = %+v", fb)
	}
	if fb.Transcript[1].Role != interview.RoleUser {
		t.Fatalf("role = %q", fb.Transcript[1].Role)
	}
}

func TestExportPDF(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/interview/export-pdf" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 report"))
	})
	var buf bytes.Buffer
	n, err := c.ExportPDF(context.Background(), "s-1", &buf)
	if err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	if n != int64(buf.Len()) || !strings.HasPrefix(buf.String(), "%PDF") {
		t.Fatalf("n = %d, body = %q", n, buf.String())
	}
}
