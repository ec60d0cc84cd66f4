package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/mockinterview/pkg/interview"
	"github.com/MrWong99/mockinterview/pkg/journal"
	"github.com/MrWong99/mockinterview/pkg/journal/postgres"
)

// testDSN returns the test database DSN, or skips the test when
// MOCKINTERVIEW_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MOCKINTERVIEW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MOCKINTERVIEW_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := postgres.NewStore(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_AppendAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := "test-" + uuid.NewString()

	msgs := []interview.Message{
		{Role: interview.RoleModel, Content: "Tell me about yourself."},
		{Role: interview.RoleUser, Content: "I have three years of experience."},
	}
	for i, m := range msgs {
		if err := s.Append(ctx, journal.Entry{SessionID: session, Seq: i, Role: m.Role, Content: m.Content}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.List(ctx, session)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for i, e := range got {
		if e.Role != msgs[i].Role || e.Content != msgs[i].Content || e.ID == "" {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
}

func TestStore_Search(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	session := "test-" + uuid.NewString()

	_ = s.Append(ctx, journal.Entry{SessionID: session, Seq: 0, Role: interview.RoleUser, Content: "I migrated our database to PostgreSQL."})
	_ = s.Append(ctx, journal.Entry{SessionID: session, Seq: 1, Role: interview.RoleModel, Content: "How did you test the migration?"})

	got, err := s.Search(ctx, "migration", journal.SearchOpts{SessionID: session})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2 (stemmed match)", len(got))
	}

	got, err = s.Search(ctx, "migration", journal.SearchOpts{SessionID: session, Role: interview.RoleUser, Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Role != interview.RoleUser {
		t.Fatalf("results = %+v", got)
	}
}
