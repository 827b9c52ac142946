package in_memory

import (
	"sync"
	"time"
)

type sessionEntry[T any] struct {
	session    T
	lastActive time.Time
}

// SessionStorage maps a chat to its live session. Nothing survives a
// restart.
type SessionStorage[T any] struct {
	mu       sync.Mutex
	sessions map[int64]*sessionEntry[T]
	now      func() time.Time
}

func NewSessionStorage[T any]() *SessionStorage[T] {
	return &SessionStorage[T]{
		sessions: make(map[int64]*sessionEntry[T]),
		now:      time.Now,
	}
}

// GetOrCreate returns the chat session, creating it with create when absent,
// and marks it as active.
func (s *SessionStorage[T]) GetOrCreate(chatID int64, create func() T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[chatID]
	if !ok {
		entry = &sessionEntry[T]{session: create()}
		s.sessions[chatID] = entry
	}
	entry.lastActive = s.now()
	return entry.session
}

// Replace stores session for chatID and returns the previous one.
func (s *SessionStorage[T]) Replace(chatID int64, session T) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.sessions[chatID]
	s.sessions[chatID] = &sessionEntry[T]{session: session, lastActive: s.now()}
	if !ok {
		var zero T
		return zero, false
	}
	return previous.session, true
}

// RemoveIdle removes and returns sessions inactive since before.
func (s *SessionStorage[T]) RemoveIdle(before time.Time) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]T, 0)
	for chatID, entry := range s.sessions {
		if entry.lastActive.Before(before) {
			removed = append(removed, entry.session)
			delete(s.sessions, chatID)
		}
	}
	return removed
}

func (s *SessionStorage[T]) RemoveAll() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]T, 0, len(s.sessions))
	for chatID, entry := range s.sessions {
		removed = append(removed, entry.session)
		delete(s.sessions, chatID)
	}
	return removed
}

func (s *SessionStorage[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
