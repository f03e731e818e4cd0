package booking

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session wraps one chat's wizard with the bookkeeping the bot needs:
// last-touch time for expiry and a mutex because Telegram updates for the
// same chat may arrive on different goroutines.
type Session struct {
	Wizard    *Wizard
	StartedAt time.Time

	touched atomic.Int64 // unix nanos of last activity
	mu      sync.Mutex
}

// Lock takes the session for the duration of one update and refreshes its
// idle timer.
func (s *Session) Lock() {
	s.mu.Lock()
	s.touched.Store(time.Now().UnixNano())
}

// Unlock releases the session.
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// IsExpired checks if the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	return time.Since(time.Unix(0, s.touched.Load())) > timeout
}

// SessionStore manages booking sessions per chat.
type SessionStore struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	timeout  time.Duration
}

// NewSessionStore creates a session store with an idle timeout.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[int64]*Session),
		timeout:  timeout,
	}
}

// Get returns the chat's session, or nil when none is active or the active
// one has expired.
func (ss *SessionStore) Get(chatID int64) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	session := ss.sessions[chatID]
	if session == nil || session.IsExpired(ss.timeout) {
		return nil
	}
	return session
}

// Put installs a fresh session for the chat, replacing any existing one.
// Replacing is how "navigation away" discards a previous draft.
func (ss *SessionStore) Put(chatID int64, w *Wizard) *Session {
	session := &Session{Wizard: w, StartedAt: time.Now()}
	session.touched.Store(time.Now().UnixNano())

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[chatID] = session
	return session
}

// Delete drops the chat's session; the draft inside is gone with it.
func (ss *SessionStore) Delete(chatID int64) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, chatID)
}

// Cleanup removes expired sessions and reports how many were dropped.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for chatID, session := range ss.sessions {
		if session.IsExpired(ss.timeout) {
			delete(ss.sessions, chatID)
			removed++
		}
	}
	return removed
}
