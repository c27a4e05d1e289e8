package config

import (
	"context"
	"fmt"

	"github.com/toolgate/toolgate/internal/model"
)

// SecretStore persists the admin account and the issued API tokens. Load
// returns a nil account and no tokens on first run. Save replaces the whole
// persisted state atomically.
type SecretStore interface {
	Load(ctx context.Context) (*model.AdminAccount, []model.APIToken, error)
	Save(ctx context.Context, account *model.AdminAccount, tokens []model.APIToken) error
	Close() error
}

// validateSecrets checks the invariants every backend must uphold on load.
func validateSecrets(account *model.AdminAccount, tokens []model.APIToken) error {
	if account == nil {
		if len(tokens) > 0 {
			return fmt.Errorf("%w: %d api tokens without an admin account", ErrStorageCorrupt, len(tokens))
		}
		return nil
	}
	if account.Username == "" || account.PasswordHash == "" || account.Salt == "" {
		return fmt.Errorf("%w: admin account is missing required fields", ErrStorageCorrupt)
	}

	ids := make(map[string]struct{}, len(tokens))
	hashes := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t.ID == "" || t.Hash == "" {
			return fmt.Errorf("%w: api token is missing id or hash", ErrStorageCorrupt)
		}
		if _, dup := ids[t.ID]; dup {
			return fmt.Errorf("%w: duplicate api token id %q", ErrStorageCorrupt, t.ID)
		}
		if _, dup := hashes[t.Hash]; dup {
			return fmt.Errorf("%w: duplicate api token hash for %q", ErrStorageCorrupt, t.ID)
		}
		ids[t.ID] = struct{}{}
		hashes[t.Hash] = struct{}{}
	}
	return nil
}
