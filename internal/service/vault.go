package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/model"
)

// vault is the authoritative in-memory copy of the admin account and the
// API tokens. Mutations build a copy, persist it, and only then swap it in,
// so a failed save leaves memory untouched.
type vault struct {
	store config.SecretStore

	mu      sync.RWMutex
	account *model.AdminAccount
	tokens  []model.APIToken
	byHash  map[string]int // token hash -> index in tokens
}

func newVault(store config.SecretStore) *vault {
	return &vault{store: store, byHash: map[string]int{}}
}

// load replaces the in-memory state with what the store holds.
func (v *vault) load(ctx context.Context) error {
	account, tokens, err := v.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	v.mu.Lock()
	v.swap(account, tokens)
	v.mu.Unlock()
	return nil
}

// swap installs new state. Caller holds the write lock.
func (v *vault) swap(account *model.AdminAccount, tokens []model.APIToken) {
	v.account = account
	v.tokens = tokens
	v.byHash = make(map[string]int, len(tokens))
	for i, t := range tokens {
		v.byHash[t.Hash] = i
	}
}

// getAccount returns a copy of the account, or nil before bootstrap.
func (v *vault) getAccount() *model.AdminAccount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.account.Clone()
}

// tokenByHash looks up a token by the SHA-256 of its raw value.
func (v *vault) tokenByHash(hash string) (model.APIToken, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	i, ok := v.byHash[hash]
	if !ok {
		return model.APIToken{}, false
	}
	return v.tokens[i], true
}

// listTokens returns a copy of the tokens in insertion order.
func (v *vault) listTokens() []model.APIToken {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]model.APIToken, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// mutation receives copies of the current state and returns the new state.
// Returning changed=false skips the save.
type mutation func(account *model.AdminAccount, tokens []model.APIToken) (newAccount *model.AdminAccount, newTokens []model.APIToken, changed bool, err error)

// update applies fn under the write lock and persists the result.
func (v *vault) update(ctx context.Context, fn mutation) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tokens := make([]model.APIToken, len(v.tokens))
	copy(tokens, v.tokens)

	account, tokens, changed, err := fn(v.account.Clone(), tokens)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := v.store.Save(ctx, account, tokens); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}
	v.swap(account, tokens)
	return nil
}
