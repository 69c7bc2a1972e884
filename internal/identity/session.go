package identity

import (
	"context"
	"sync"
)

// Session holds the identity bound to one connection. The identity may be
// replaced (token refresh) or cleared (sign out); observers are told about
// every change.
type Session struct {
	verifier Verifier

	mu        sync.RWMutex
	current   *Identity
	nextID    int
	observers map[int]func(*Identity)
}

func NewSession(verifier Verifier, initial *Identity) *Session {
	return &Session{
		verifier:  verifier,
		current:   initial,
		observers: make(map[int]func(*Identity)),
	}
}

// Current returns the identity, or nil when signed out.
func (s *Session) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the identity and notifies observers when the user changed.
func (s *Session) Set(id *Identity) {
	s.mu.Lock()
	prev := s.current
	s.current = id
	var notify []func(*Identity)
	if !sameUser(prev, id) {
		for _, cb := range s.observers {
			notify = append(notify, cb)
		}
	}
	s.mu.Unlock()

	for _, cb := range notify {
		cb(id)
	}
}

// Refresh verifies token and makes its identity current. On failure the
// session is signed out.
func (s *Session) Refresh(ctx context.Context, token string) (*Identity, error) {
	id, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.Set(nil)
		return nil, err
	}
	s.Set(id)
	return id, nil
}

// OnChange registers cb and returns a function removing it.
func (s *Session) OnChange(cb func(*Identity)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func sameUser(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UserID == b.UserID
}
