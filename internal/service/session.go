package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/toolgate/toolgate/internal/model"
)

const sessionIDBytes = 32

var dummyHash = strings.Repeat("00", 32)

// Session is an authenticated browser login. Sessions live in memory only.
type Session struct {
	ID        string    `json:"-"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// attemptKey scopes a failure counter to one username from one client.
// Change-password failures set session instead of client; it is never logged.
type attemptKey struct {
	username string
	client   string
	session  string
}

type loginAttempts struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// SessionManager creates, validates and expires admin sessions and applies
// the failed-login cooldown.
type SessionManager struct {
	vault     *vault
	hasher    *PasswordHasher
	ttl       time.Duration
	maxFailed int
	lockout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	// dummySalt is hashed with for unknown usernames so a miss costs the
	// same as a wrong password.
	dummySalt string

	mu       sync.RWMutex
	sessions map[string]*Session

	attemptsMu sync.Mutex
	attempts   map[attemptKey]*loginAttempts
}

func newSessionManager(v *vault, hasher *PasswordHasher, opts Options) *SessionManager {
	return &SessionManager{
		vault:     v,
		hasher:    hasher,
		ttl:       opts.SessionTTL,
		maxFailed: opts.MaxFailedLogins,
		lockout:   opts.LockoutDuration,
		now:       opts.Now,
		logger:    opts.Logger,
		dummySalt: strings.Repeat("5a", saltBytes),
		sessions:  map[string]*Session{},
		attempts:  map[attemptKey]*loginAttempts{},
	}
}

// TTL returns the lifetime of new sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Login checks the credentials and opens a new session. Unknown usernames
// and wrong passwords both yield ErrInvalidCredentials. clientIP scopes the
// failed-login cooldown; it may be empty.
func (m *SessionManager) Login(ctx context.Context, username, password, clientIP string) (*Session, error) {
	now := m.now()
	key := attemptKey{username: username, client: clientIP}
	if m.lockedOut(key, now) {
		return nil, ErrTooManyAttempts
	}

	account := m.vault.getAccount()
	if account == nil || subtle.ConstantTimeCompare([]byte(username), []byte(account.Username)) != 1 {
		m.hasher.Verify(password, m.dummySalt, dummyHash)
		m.recordFailure(key, now)
		return nil, ErrInvalidCredentials
	}
	if !m.hasher.Verify(password, account.Salt, account.PasswordHash) {
		m.recordFailure(key, now)
		return nil, ErrInvalidCredentials
	}
	m.resetFailures(key)

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:        id,
		Username:  account.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.logger.Info("admin logged in", "username", account.Username)
	c := *sess
	return &c, nil
}

// Validate returns the session for id. An expired session is removed in the
// same call.
func (m *SessionManager) Validate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}

	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}

	if sess.Expired(m.now()) {
		m.mu.Lock()
		if cur, ok := m.sessions[id]; ok && cur == sess {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		return nil, ErrSessionExpired
	}

	c := *sess
	return &c, nil
}

// Logout removes the session. Unknown ids are ignored.
func (m *SessionManager) Logout(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// ChangePassword replaces the admin password after re-verifying the old one
// and ends every session except the caller's. Wrong old passwords are
// subject to the failed-login cooldown, counted per session.
func (m *SessionManager) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	sess, err := m.Validate(ctx, id)
	if err != nil {
		return err
	}
	now := m.now()
	key := attemptKey{username: sess.Username, session: id}
	if m.lockedOut(key, now) {
		return ErrTooManyAttempts
	}

	err = m.vault.update(ctx, func(account *model.AdminAccount, tokens []model.APIToken) (*model.AdminAccount, []model.APIToken, bool, error) {
		if account == nil {
			return nil, nil, false, ErrNotBootstrapped
		}
		if !m.hasher.Verify(oldPassword, account.Salt, account.PasswordHash) {
			return nil, nil, false, ErrInvalidCredentials
		}
		if len(newPassword) < MinPasswordLength {
			return nil, nil, false, ErrWeakPassword
		}
		account.PasswordHash = m.hasher.Hash(newPassword, account.Salt)
		account.UpdatedAt = m.now()
		return account, tokens, true, nil
	})
	if errors.Is(err, ErrInvalidCredentials) {
		m.recordFailure(key, now)
	}
	if err != nil {
		return err
	}
	m.resetFailures(key)

	n := m.endSessionsExcept(id)
	m.logger.Info("admin password changed", "ended_sessions", n)
	return nil
}

// ResetPassword sets a new admin password without the old one and ends all
// sessions. It backs the offline admin passwd command.
func (m *SessionManager) ResetPassword(ctx context.Context, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	err := m.vault.update(ctx, func(account *model.AdminAccount, tokens []model.APIToken) (*model.AdminAccount, []model.APIToken, bool, error) {
		if account == nil {
			return nil, nil, false, ErrNotBootstrapped
		}
		account.PasswordHash = m.hasher.Hash(newPassword, account.Salt)
		account.UpdatedAt = m.now()
		return account, tokens, true, nil
	})
	if err != nil {
		return err
	}
	m.endSessionsExcept("")
	m.resetUserFailures(m.vault.getAccount().Username)
	return nil
}

// Sweep removes expired sessions and stale failed-login counters. It returns
// the number of sessions removed.
func (m *SessionManager) Sweep(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	m.attemptsMu.Lock()
	for key, a := range m.attempts {
		if now.After(a.lockedUntil) && now.Sub(a.lastFailure) > m.lockout {
			delete(m.attempts, key)
		}
	}
	m.attemptsMu.Unlock()

	if removed > 0 {
		m.logger.Debug("swept expired sessions", "count", removed)
	}
	return removed
}

// Active returns the number of sessions currently held, expired or not.
func (m *SessionManager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) endSessionsExcept(keep string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.sessions {
		if id != keep {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *SessionManager) lockedOut(key attemptKey, now time.Time) bool {
	if m.maxFailed <= 0 {
		return false
	}
	m.attemptsMu.Lock()
	defer m.attemptsMu.Unlock()
	a, ok := m.attempts[key]
	return ok && now.Before(a.lockedUntil)
}

func (m *SessionManager) recordFailure(key attemptKey, now time.Time) {
	if m.maxFailed <= 0 {
		return
	}
	m.attemptsMu.Lock()
	defer m.attemptsMu.Unlock()

	a, ok := m.attempts[key]
	if !ok {
		a = &loginAttempts{}
		m.attempts[key] = a
	}
	a.failures++
	a.lastFailure = now
	if a.failures >= m.maxFailed {
		a.failures = 0
		a.lockedUntil = now.Add(m.lockout)
		m.logger.Warn("login locked after repeated failures",
			"username", key.username, "client", key.client, "until", a.lockedUntil.Format(time.RFC3339))
	}
}

func (m *SessionManager) resetFailures(key attemptKey) {
	m.attemptsMu.Lock()
	delete(m.attempts, key)
	m.attemptsMu.Unlock()
}

func (m *SessionManager) resetUserFailures(username string) {
	m.attemptsMu.Lock()
	for key := range m.attempts {
		if key.username == username {
			delete(m.attempts, key)
		}
	}
	m.attemptsMu.Unlock()
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
