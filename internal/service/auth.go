package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/model"
)

// Kind classifies an authentication verdict.
type Kind int

const (
	Unauthenticated Kind = iota
	AdminSession
	APIClient
)

func (k Kind) String() string {
	switch k {
	case AdminSession:
		return "admin_session"
	case APIClient:
		return "api_client"
	default:
		return "unauthenticated"
	}
}

// Result is the verdict for one request. Session is set for AdminSession,
// Token for APIClient.
type Result struct {
	Kind    Kind
	Session *Session
	Token   *model.APIToken
}

// Authenticated reports whether the request carried a valid credential.
func (r Result) Authenticated() bool {
	return r.Kind != Unauthenticated
}

// Principal names who made the request: the admin username for a session,
// the token ID for an API client, empty otherwise.
func (r Result) Principal() string {
	switch r.Kind {
	case AdminSession:
		return r.Session.Username
	case APIClient:
		return r.Token.ID
	default:
		return ""
	}
}

// Options configures an AuthService. Zero values get defaults.
type Options struct {
	AdminUsername   string
	DefaultPassword string // development only
	SessionTTL      time.Duration
	MaxFailedLogins int // 0 disables the cooldown
	LockoutDuration time.Duration
	PasswordParams  *PasswordParams
	Logger          *slog.Logger
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.AdminUsername == "" {
		o.AdminUsername = "admin"
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 24 * time.Hour
	}
	if o.LockoutDuration <= 0 {
		o.LockoutDuration = 5 * time.Minute
	}
	if o.PasswordParams == nil {
		p := DefaultPasswordParams
		o.PasswordParams = &p
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// AuthService is the single entry point for authentication decisions. It
// owns the session and token managers, which share one vault.
type AuthService struct {
	opts     Options
	vault    *vault
	hasher   *PasswordHasher
	sessions *SessionManager
	tokens   *TokenManager
	logger   *slog.Logger
}

// NewAuthService loads the persisted secrets and returns a ready service.
// A corrupt store is reported as an error wrapping config.ErrStorageCorrupt.
func NewAuthService(ctx context.Context, store config.SecretStore, opts Options) (*AuthService, error) {
	opts = opts.withDefaults()
	v := newVault(store)
	if err := v.load(ctx); err != nil {
		return nil, err
	}
	hasher := NewPasswordHasher(*opts.PasswordParams)
	return &AuthService{
		opts:     opts,
		vault:    v,
		hasher:   hasher,
		sessions: newSessionManager(v, hasher, opts),
		tokens:   newTokenManager(v, opts),
		logger:   opts.Logger,
	}, nil
}

// Sessions returns the session manager.
func (s *AuthService) Sessions() *SessionManager { return s.sessions }

// Tokens returns the token manager.
func (s *AuthService) Tokens() *TokenManager { return s.tokens }

// Account returns a copy of the admin account, or nil before Bootstrap.
func (s *AuthService) Account() *model.AdminAccount {
	return s.vault.getAccount()
}

// Authenticate decides who sent a request from its session cookie value and
// Authorization header. A bearer token is tried first, then the cookie.
func (s *AuthService) Authenticate(ctx context.Context, cookieValue, authorization string) Result {
	if raw, ok := ParseBearer(authorization); ok {
		tok, err := s.tokens.Validate(ctx, raw)
		if err == nil {
			return Result{Kind: APIClient, Token: tok}
		}
	}
	if cookieValue != "" {
		sess, err := s.sessions.Validate(ctx, cookieValue)
		if err == nil {
			return Result{Kind: AdminSession, Session: sess}
		}
	}
	return Result{Kind: Unauthenticated}
}

// ParseBearer extracts the credential from an "Authorization: Bearer x"
// header value. The scheme is case-insensitive.
func ParseBearer(header string) (string, bool) {
	scheme, cred, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return "", false
	}
	return cred, true
}

// BootstrapResult reports what Bootstrap did. Password is only set when an
// account was created, and is the only copy of the plaintext.
type BootstrapResult struct {
	Created   bool
	Username  string
	Password  string
	Generated bool
}

// Bootstrap creates the admin account on first run. It does nothing when an
// account already exists.
func (s *AuthService) Bootstrap(ctx context.Context) (BootstrapResult, error) {
	if acc := s.vault.getAccount(); acc != nil {
		return BootstrapResult{Username: acc.Username}, nil
	}

	salt, err := GenerateSalt()
	if err != nil {
		return BootstrapResult{}, err
	}
	password := s.opts.DefaultPassword
	generated := password == ""
	if generated {
		password, err = generatePassword()
		if err != nil {
			return BootstrapResult{}, err
		}
	}

	created := false
	now := s.opts.Now()
	err = s.vault.update(ctx, func(account *model.AdminAccount, tokens []model.APIToken) (*model.AdminAccount, []model.APIToken, bool, error) {
		if account != nil {
			return account, tokens, false, nil
		}
		created = true
		return &model.AdminAccount{
			Username:     s.opts.AdminUsername,
			PasswordHash: s.hasher.Hash(password, salt),
			Salt:         salt,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, tokens, true, nil
	})
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("bootstrap admin account: %w", err)
	}
	if !created {
		return BootstrapResult{Username: s.vault.getAccount().Username}, nil
	}

	if generated {
		s.logger.Info("created admin account with generated password", "username", s.opts.AdminUsername)
	} else {
		s.logger.Warn("created admin account with configured default password; for development only, change it",
			"username", s.opts.AdminUsername)
	}
	return BootstrapResult{
		Created:   true,
		Username:  s.opts.AdminUsername,
		Password:  password,
		Generated: generated,
	}, nil
}

// generatePassword returns 16 characters from the base64url alphabet.
func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
