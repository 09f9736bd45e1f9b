package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used in development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	messages map[string][]Message // keyed by session ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		messages: make(map[string][]Message),
	}
}

func (s *MemoryStore) LoadSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := sess
	cp.ContextBag = copyBag(sess.ContextBag)
	return &cp, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Revision++
	cp := *sess
	cp.ContextBag = copyBag(sess.ContextBag)
	s.sessions[sess.ID] = cp
	return nil
}

func (s *MemoryStore) SaveMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)
	return nil
}

func (s *MemoryStore) ListIdleSessions(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, sess := range s.sessions {
		if !sess.Archived && sess.LastActivityAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) ArchiveSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Archived = true
	s.sessions[sessionID] = sess
	return nil
}

func (s *MemoryStore) DeleteUserData(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
			delete(s.messages, id)
		}
	}
	return nil
}

// Messages returns persisted messages for a session. Test helper.
func (s *MemoryStore) Messages(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out
}

func copyBag(bag map[string]string) map[string]string {
	if bag == nil {
		return nil
	}
	out := make(map[string]string, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out
}
