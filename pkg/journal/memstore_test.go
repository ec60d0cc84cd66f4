package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/journal"
)

func seed(t *testing.T, s journal.Store) {
	t.Helper()
	ctx := context.Background()
	entries := []journal.Entry{
		{SessionID: "a", Seq: 1, Role: interview.RoleUser, Content: "I have three years of Go experience"},
		{SessionID: "a", Seq: 0, Role: interview.RoleModel, Content: "Tell me about your background."},
		{SessionID: "a", Seq: 2, Role: interview.RoleModel, Content: "Great, tell me about a Go project."},
		{SessionID: "b", Seq: 0, Role: interview.RoleUser, Content: "Hello"},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestMemStore_List(t *testing.T) {
	var s journal.MemStore
	seed(t, &s)

	got, err := s.List(context.Background(), "a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, e := range got {
		if e.Seq != i {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Errorf("entry %d missing id or timestamp: %+v", i, e)
		}
	}

	empty, _ := s.List(context.Background(), "missing")
	if empty == nil || len(empty) != 0 {
		t.Fatalf("missing session = %v, want empty slice", empty)
	}
}

func TestMemStore_Search(t *testing.T) {
	var s journal.MemStore
	seed(t, &s)

	tests := []struct {
		name  string
		query string
		opts  journal.SearchOpts
		want  int
	}{
		{"all sessions", "go", journal.SearchOpts{}, 2},
		{"case insensitive", "GREAT", journal.SearchOpts{}, 1},
		{"by session", "hello", journal.SearchOpts{SessionID: "a"}, 0},
		{"by role", "go", journal.SearchOpts{Role: interview.RoleModel}, 1},
		{"limit", "e", journal.SearchOpts{Limit: 2}, 2},
		{"after", "go", journal.SearchOpts{After: time.Now().Add(time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(context.Background(), tt.query, tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d results, want %d: %+v", len(got), tt.want, got)
			}
		})
	}
}
