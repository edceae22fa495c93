package store

import (
	"sync"

	"github.com/google/uuid"

	"grove/internal/utils"
)

// sessionRegistry keeps the token<->user mapping. At most one live token
// per user: a second login while a token is live is rejected, not replaced.
type sessionRegistry struct {
	mu      sync.Mutex
	byToken map[string]string
	byUser  map[string]string
}

func (r *sessionRegistry) init() {
	r.byToken = make(map[string]string)
	r.byUser = make(map[string]string)
}

// Login authenticates the user and issues a fresh token. Failure modes, in
// order: ErrUserNotFound for an unknown username, ErrAuthFailed for a
// password mismatch, ErrAlreadyLoggedIn when a token is already live (no
// token is issued in that case).
func (s *Store) Login(username, password string) (string, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	us := s.userShardFor(username)
	us.mu.Lock()
	user, ok := us.users[username]
	var hash string
	if ok {
		hash = user.PasswordHash
	}
	us.mu.Unlock()
	if !ok {
		return "", ErrUserNotFound
	}
	// Compare outside the shard lock; bcrypt takes tens of milliseconds.
	if !utils.CheckPasswordHash(password, hash) {
		return "", ErrAuthFailed
	}

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	if _, live := s.sessions.byUser[username]; live {
		return "", ErrAlreadyLoggedIn
	}
	token := uuid.NewString()
	s.sessions.byToken[token] = username
	s.sessions.byUser[username] = token
	return token, nil
}

// Logout invalidates the token.
func (s *Store) Logout(token string) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	username, ok := s.sessions.byToken[token]
	if !ok {
		return ErrInvalidToken
	}
	delete(s.sessions.byToken, token)
	delete(s.sessions.byUser, username)
	return nil
}

// Authenticate resolves a token to its username.
func (s *Store) Authenticate(token string) (string, bool) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	username, ok := s.sessions.byToken[token]
	return username, ok
}
