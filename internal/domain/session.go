package domain

import (
	"errors"
	"sync"
	"time"
)

// ErrIdentityBound is returned when a connection tries to re-join under a
// different user id than the one it already bound.
var ErrIdentityBound = errors.New("connection already bound to another user")

// Session is the per-connection state from connect to disconnect. The
// identity bound at user:join is the only identity the connection may act
// as; a fresh connection starts unbound and must join again.
type Session struct {
	ID           string
	userID       int64
	bound        bool
	CreatedAt    time.Time
	lastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActiveAt: now,
	}
}

// Bind records the connection's user identity. Binding the same id again
// is a no-op; binding a different id is rejected.
func (s *Session) Bind(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound && s.userID != userID {
		return ErrIdentityBound
	}
	s.userID = userID
	s.bound = true
	s.lastActiveAt = time.Now()
	return nil
}

// BoundUser returns the bound user id, if any.
func (s *Session) BoundUser() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.bound
}

// UpdateActivity refreshes the last-activity timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

// LastActiveAt returns the last-activity timestamp.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}
