package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/model"
)

const (
	// MaxLabelLength is the longest token label accepted, in characters.
	MaxLabelLength = 100

	tokenSecretBytes = 32
	tokenPrefixLen   = 12
)

// TokenManager issues, lists, revokes and validates API tokens.
type TokenManager struct {
	vault  *vault
	now    func() time.Time
	logger *slog.Logger
}

func newTokenManager(v *vault, opts Options) *TokenManager {
	return &TokenManager{vault: v, now: opts.Now, logger: opts.Logger}
}

// Issue creates a token and returns its record together with the raw value.
// The raw value is not kept anywhere and cannot be recovered later.
func (m *TokenManager) Issue(ctx context.Context, label string) (*model.APIToken, string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, "", ErrLabelRequired
	}
	if utf8.RuneCountInString(label) > MaxLabelLength {
		return nil, "", ErrLabelTooLong
	}

	raw, err := newRawToken()
	if err != nil {
		return nil, "", err
	}
	tok := model.APIToken{
		Prefix:    raw[:tokenPrefixLen],
		Hash:      config.HashToken(raw),
		Label:     label,
		CreatedAt: m.now(),
	}

	err = m.vault.update(ctx, func(account *model.AdminAccount, tokens []model.APIToken) (*model.AdminAccount, []model.APIToken, bool, error) {
		if account == nil {
			return nil, nil, false, ErrNotBootstrapped
		}
		for tok.ID == "" || hasTokenID(tokens, tok.ID) {
			tok.ID = newTokenID()
		}
		return account, append(tokens, tok), true, nil
	})
	if err != nil {
		return nil, "", err
	}

	m.logger.Info("api token issued", "token_id", tok.ID, "label", tok.Label)
	return &tok, raw, nil
}

// Revoke marks a token as revoked. Revoking an already revoked token is a
// no-op.
func (m *TokenManager) Revoke(ctx context.Context, id string) error {
	revoked := false
	err := m.vault.update(ctx, func(account *model.AdminAccount, tokens []model.APIToken) (*model.AdminAccount, []model.APIToken, bool, error) {
		for i := range tokens {
			if tokens[i].ID != id {
				continue
			}
			if tokens[i].Revoked {
				return account, tokens, false, nil
			}
			tokens[i].Revoked = true
			revoked = true
			return account, tokens, true, nil
		}
		return nil, nil, false, ErrUnknownToken
	})
	if err != nil {
		return err
	}
	if revoked {
		m.logger.Info("api token revoked", "token_id", id)
	}
	return nil
}

// List returns every token, revoked ones included, newest first.
func (m *TokenManager) List(ctx context.Context) []model.APIToken {
	tokens := m.vault.listTokens()
	// Tokens are appended in issue order, so reversing yields newest first
	// even when clocks tie.
	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
	})
	return tokens
}

// Validate returns the active token whose raw value is raw.
func (m *TokenManager) Validate(ctx context.Context, raw string) (*model.APIToken, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	tok, ok := m.vault.tokenByHash(config.HashToken(raw))
	if !ok || tok.Revoked {
		return nil, ErrInvalidToken
	}
	return &tok, nil
}

func hasTokenID(tokens []model.APIToken, id string) bool {
	for _, t := range tokens {
		if t.ID == id {
			return true
		}
	}
	return false
}

// newRawToken returns mcp_ followed by 32 random bytes, base64url.
func newRawToken() (string, error) {
	b := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return model.TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// newTokenID returns mcp_ followed by 16 hex characters.
func newTokenID() string {
	u := uuid.New()
	return model.TokenPrefix + hex.EncodeToString(u[:8])
}
