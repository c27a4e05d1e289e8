package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/model"
)

// testParams keep Argon2id cheap in tests.
var testParams = PasswordParams{Time: 1, Memory: 64, Threads: 1, KeyLen: 32}

const testPassword = "correct horse"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testOptions(clock *fakeClock) Options {
	p := testParams
	return Options{
		DefaultPassword: testPassword,
		SessionTTL:      time.Hour,
		MaxFailedLogins: 3,
		LockoutDuration: 5 * time.Minute,
		PasswordParams:  &p,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:             clock.Now,
	}
}

// newTestAuth returns a bootstrapped AuthService over an in-memory store.
func newTestAuth(t *testing.T) (*AuthService, *config.Store, *fakeClock) {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := newFakeClock()
	auth, err := NewAuthService(context.Background(), store, testOptions(clock))
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	if _, err := auth.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return auth, store, clock
}

func login(t *testing.T, auth *AuthService) *Session {
	t.Helper()
	sess, err := auth.Sessions().Login(context.Background(), "admin", testPassword, "192.0.2.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return sess
}

// memStore is a SecretStore whose Save can be made to fail.
type memStore struct {
	mu       sync.Mutex
	account  *model.AdminAccount
	tokens   []model.APIToken
	saves    int
	failSave bool
}

func (s *memStore) Load(ctx context.Context) (*model.AdminAccount, []model.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.Clone(), append([]model.APIToken(nil), s.tokens...), nil
}

func (s *memStore) Save(ctx context.Context, account *model.AdminAccount, tokens []model.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	s.saves++
	s.account = account.Clone()
	s.tokens = append([]model.APIToken(nil), tokens...)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) setFailSave(fail bool) {
	s.mu.Lock()
	s.failSave = fail
	s.mu.Unlock()
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
