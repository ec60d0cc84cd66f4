// Package journal records the interview transcript as it happens.
//
// Every Message appended to a call is also written to a [Store], so the
// transcript survives the process even if the remote service loses it.
// Writes are best-effort from the caller's point of view; a failing journal
// never interrupts the conversation.
//
// Every implementation must be safe for concurrent use.
package journal

import (
	"context"
	"time"

	"github.com/MrWong99/mockinterview/pkg/interview"
)

// Entry is one journaled message.
type Entry struct {
	// ID uniquely identifies the entry (a UUID).
	ID string

	// SessionID is the interview session the message belongs to.
	SessionID string

	// Seq is the zero-based position of the message within its session.
	Seq int

	Role    interview.Role
	Content string

	// Timestamp is when the message was appended.
	Timestamp time.Time
}

// SearchOpts filters a [Store.Search]. Zero fields are ignored.
type SearchOpts struct {
	SessionID string
	Role      interview.Role
	After     time.Time
	Limit     int
}

// Store is an append-only message journal.
type Store interface {
	// Append records e. Implementations fill in ID and Timestamp when empty.
	Append(ctx context.Context, e Entry) error

	// List returns all entries of sessionID ordered by Seq.
	List(ctx context.Context, sessionID string) ([]Entry, error)

	// Search returns entries whose content matches query, oldest first.
	Search(ctx context.Context, query string, opts SearchOpts) ([]Entry, error)
}
