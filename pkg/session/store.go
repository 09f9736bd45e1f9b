package session

import (
	"context"
	"time"
)

// Store is the narrow persistence interface the core depends on. The core
// never issues queries directly; any backend satisfying this interface can
// be substituted.
type Store interface {
	// LoadSession returns the session or ErrNotFound.
	LoadSession(ctx context.Context, sessionID string) (*Session, error)
	// SaveSession persists the full session record, bumping its revision.
	SaveSession(ctx context.Context, s *Session) error
	// SaveMessage persists an immutable message record.
	SaveMessage(ctx context.Context, m *Message) error
	// ListIdleSessions returns IDs of unarchived sessions idle since before cutoff.
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error)
	// ArchiveSession marks a session archived. Archived sessions are kept,
	// not deleted; only DeleteUserData removes records.
	ArchiveSession(ctx context.Context, sessionID string) error
	// DeleteUserData hard-deletes all sessions and messages for a user.
	// Only invoked on an explicit erasure request.
	DeleteUserData(ctx context.Context, userID string) error
}
