package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/toolgate/toolgate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// sampleSecrets returns a valid account with two tokens, the second revoked.
func sampleSecrets() (*model.AdminAccount, []model.APIToken) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	account := &model.AdminAccount{
		Username:     "admin",
		PasswordHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Salt:         "00112233445566778899aabbccddeeff",
		CreatedAt:    now,
		UpdatedAt:    now.Add(time.Hour),
	}
	tokens := []model.APIToken{
		{
			ID:        "mcp_0123456789abcdef",
			Prefix:    "mcp_AbCdEfGh",
			Hash:      HashToken("mcp_first"),
			Label:     "laptop",
			CreatedAt: now.Add(2 * time.Hour),
		},
		{
			ID:        "mcp_fedcba9876543210",
			Prefix:    "mcp_ZyXwVuTs",
			Hash:      HashToken("mcp_second"),
			Label:     "ci",
			CreatedAt: now.Add(3 * time.Hour),
			Revoked:   true,
		},
	}
	return account, tokens
}

func assertSecretsEqual(t *testing.T, gotAccount *model.AdminAccount, gotTokens []model.APIToken, wantAccount *model.AdminAccount, wantTokens []model.APIToken) {
	t.Helper()
	if gotAccount == nil {
		t.Fatal("expected account, got nil")
	}
	if gotAccount.Username != wantAccount.Username ||
		gotAccount.PasswordHash != wantAccount.PasswordHash ||
		gotAccount.Salt != wantAccount.Salt {
		t.Errorf("account = %+v, want %+v", gotAccount, wantAccount)
	}
	if !gotAccount.CreatedAt.Equal(wantAccount.CreatedAt) || !gotAccount.UpdatedAt.Equal(wantAccount.UpdatedAt) {
		t.Errorf("account times = %v/%v, want %v/%v",
			gotAccount.CreatedAt, gotAccount.UpdatedAt, wantAccount.CreatedAt, wantAccount.UpdatedAt)
	}
	if len(gotTokens) != len(wantTokens) {
		t.Fatalf("got %d tokens, want %d", len(gotTokens), len(wantTokens))
	}
	for i := range wantTokens {
		g, w := gotTokens[i], wantTokens[i]
		if g.ID != w.ID || g.Prefix != w.Prefix || g.Hash != w.Hash || g.Label != w.Label || g.Revoked != w.Revoked {
			t.Errorf("token[%d] = %+v, want %+v", i, g, w)
		}
		if !g.CreatedAt.Equal(w.CreatedAt) {
			t.Errorf("token[%d] created_at = %v, want %v", i, g.CreatedAt, w.CreatedAt)
		}
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	s := newTestStore(t)

	account, tokens, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if account != nil {
		t.Errorf("expected nil account on first run, got %+v", account)
	}
	if len(tokens) != 0 {
		t.Errorf("expected no tokens, got %d", len(tokens))
	}
}

func TestStoreSecretsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	account, tokens := sampleSecrets()

	if err := s.Save(ctx, account, tokens); err != nil {
		t.Fatalf("Save: %v", err)
	}
	gotAccount, gotTokens, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSecretsEqual(t, gotAccount, gotTokens, account, tokens)
}

func TestStoreSaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	account, tokens := sampleSecrets()

	if err := s.Save(ctx, account, tokens); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Reverse order and drop nothing: the stored order must follow the slice.
	reordered := []model.APIToken{tokens[1], tokens[0]}
	account.PasswordHash = "aa"
	if err := s.Save(ctx, account, reordered); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	gotAccount, gotTokens, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSecretsEqual(t, gotAccount, gotTokens, account, reordered)
}

func TestStoreSaveFailureKeepsPreviousState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	account, tokens := sampleSecrets()

	if err := s.Save(ctx, account, tokens); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Duplicate IDs violate the primary key half way through the insert.
	bad := append([]model.APIToken{}, tokens...)
	bad = append(bad, model.APIToken{ID: tokens[0].ID, Hash: "other", Prefix: "x", CreatedAt: time.Now()})
	if err := s.Save(ctx, account, bad); err == nil {
		t.Fatal("expected error saving duplicate token ids")
	}

	gotAccount, gotTokens, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSecretsEqual(t, gotAccount, gotTokens, account, tokens)
}

func TestStoreLoadCorrupt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A token row with no admin account violates the invariants.
	_, err := s.db.Exec(`INSERT INTO api_tokens (id, token_hash, prefix, label, position, revoked, created_at)
		VALUES ('mcp_orphan', 'abc', 'mcp_orphan', '', 0, 0, 0)`)
	if err != nil {
		t.Fatalf("insert orphan token: %v", err)
	}

	_, _, err = s.Load(ctx)
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Fatalf("Load error = %v, want ErrStorageCorrupt", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mssql", "sqlserver://localhost"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := Open(DriverPostgres, ""); err == nil {
		t.Fatal("expected error for missing dsn")
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("mcp_abc")
	h2 := HashToken("mcp_abc")
	h3 := HashToken("mcp_abd")

	if h1 != h2 {
		t.Error("same input should produce same hash")
	}
	if h1 == h3 {
		t.Error("different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(h1))
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account, tokens := sampleSecrets()
	if err := s.Save(ctx, account, tokens); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	got, gotTokens, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.Username != "admin" || len(gotTokens) != len(tokens) {
		t.Errorf("data lost after re-running migrations: %+v, %d tokens", got, len(gotTokens))
	}
}
