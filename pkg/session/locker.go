package session

import "sync"

// Locker serializes turns per session: at most one in-flight turn per
// session ID, while different sessions proceed fully in parallel. No
// cross-session locks exist.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*sessionLock)}
}

// Lock acquires the per-session lock, blocking behind any in-flight turn
// for the same session. The returned func releases it.
func (l *Locker) Lock(sessionID string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	if !ok {
		sl = &sessionLock{}
		l.locks[sessionID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()

	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
