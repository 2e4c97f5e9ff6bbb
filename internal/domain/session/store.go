// Package session owns the in-memory session store: opaque tokens mapped to
// authenticated identities with a sliding expiry window and a background
// sweep bounding memory growth from abandoned sessions.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/shared/vfserr"
)

// Session tracks one issued token. The store is the exclusive owner of
// Session values; callers only ever see copies.
type Session struct {
	Token        string
	UserID       id.UserID
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// Store issues, refreshes, and sweeps sessions. Safe for concurrent use:
// request handling and the sweep ticker run on separate goroutines.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl    time.Duration
	logger *zap.Logger

	sweepStop chan struct{}
	sweepOnce sync.Once

	activeGauge  prometheus.Gauge
	sweptCounter prometheus.Counter
}

// NewStore creates a session store with the given sliding TTL and starts the
// background sweep on the given interval. Close stops the sweeper.
func NewStore(ttl, sweepInterval time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		sessions:  make(map[string]*Session),
		ttl:       ttl,
		logger:    logger,
		sweepStop: make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

// WithMetrics reports live and swept session counts to collectors. Optional.
func (s *Store) WithMetrics(active prometheus.Gauge, swept prometheus.Counter) *Store {
	s.activeGauge = active
	s.sweptCounter = swept
	return s
}

func (s *Store) reportActiveLocked() {
	if s.activeGauge != nil {
		s.activeGauge.Set(float64(len(s.sessions)))
	}
}

// TTL returns the sliding expiry window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Issue mints a session for a user and returns the opaque token.
func (s *Store) Issue(userID id.UserID) string {
	token := newToken()
	now := time.Now()

	s.mu.Lock()
	s.sessions[token] = &Session{
		Token:        token,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.reportActiveLocked()
	s.mu.Unlock()

	s.logger.Debug("session issued", zap.String("user", userID.String()))
	return token
}

// Authenticate resolves a token to its user and slides the expiry window.
// Absent and expired tokens fail identically.
func (s *Store) Authenticate(token string) (id.UserID, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return "", vfserr.Auth
	}
	if now.After(sess.ExpiresAt) {
		delete(s.sessions, token)
		s.reportActiveLocked()
		return "", vfserr.Auth
	}
	sess.LastActivity = now
	sess.ExpiresAt = now.Add(s.ttl)
	return sess.UserID, nil
}

// Refresh rotates a token: the old one is invalidated and a new one issued
// for the same user. A token idle for longer than the TTL cannot be
// refreshed; the client has to log in again.
func (s *Store) Refresh(oldToken string) (string, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[oldToken]
	if !ok {
		return "", vfserr.Auth
	}
	if now.Sub(sess.LastActivity) > s.ttl {
		delete(s.sessions, oldToken)
		s.reportActiveLocked()
		return "", vfserr.Auth
	}

	delete(s.sessions, oldToken)
	token := newToken()
	s.sessions[token] = &Session{
		Token:        token,
		UserID:       sess.UserID,
		CreatedAt:    sess.CreatedAt,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	return token, nil
}

// Logout deletes a session. Idempotent: unknown tokens are a no-op.
func (s *Store) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.reportActiveLocked()
	s.mu.Unlock()
}

// Count returns the number of live session objects, expired or not.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes every session whose expiry has passed and reports how many
// were removed. Exposed for tests; the background loop calls it on a timer.
func (s *Store) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	s.reportActiveLocked()
	return removed
}

// Close stops the background sweeper. Safe to call more than once.
func (s *Store) Close() {
	s.sweepOnce.Do(func() { close(s.sweepStop) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("swept expired sessions", zap.Int("removed", removed))
				if s.sweptCounter != nil {
					s.sweptCounter.Add(float64(removed))
				}
			}
		case <-s.sweepStop:
			return
		}
	}
}

// newToken mints an unguessable opaque token.
func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// If crypto/rand fails there is no safe fallback.
		panic(fmt.Sprintf("crypto/rand failed: %v - cannot generate secure token", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
