package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/toolgate/toolgate/internal/model"
)

// Storage drivers accepted by Open and the storage.driver setting.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DatabaseFileName is the SQLite file used inside the data directory.
const DatabaseFileName = "toolgate.db"

// sqlDriverNames maps storage drivers to database/sql driver names.
var sqlDriverNames = map[string]string{
	DriverSQLite:   "sqlite",
	DriverPostgres: "pgx",
	DriverMySQL:    "mysql",
}

// Store is the SQL backend. It implements SecretStore and also holds the
// request log, which is always kept in SQL even when secrets live in a file.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore opens a SQLite store in dataDir. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, DatabaseFileName) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	return Open(DriverSQLite, dsn)
}

// Open connects to a SQL database with one of the DriverSQLite,
// DriverPostgres or DriverMySQL drivers and applies the schema.
func Open(driver, dsn string) (*Store, error) {
	sqlDriver, ok := sqlDriverNames[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("storage driver %q requires a dsn", driver)
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", driver, err)
	}
	return s, nil
}

// Driver returns the storage driver the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Secrets
// ---------------------------------------------------------------------------

// adminRow maps to the admin_account table. The table holds at most one row
// with id 1.
type adminRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	Salt         string `db:"salt"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r adminRow) toModel() *model.AdminAccount {
	return &model.AdminAccount{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Salt:         r.Salt,
		CreatedAt:    fromUnixNano(r.CreatedAt),
		UpdatedAt:    fromUnixNano(r.UpdatedAt),
	}
}

// tokenRow maps to the api_tokens table. Revoked is an integer so the same
// statement binds on every driver.
type tokenRow struct {
	ID        string `db:"id"`
	TokenHash string `db:"token_hash"`
	Prefix    string `db:"prefix"`
	Label     string `db:"label"`
	Position  int    `db:"position"`
	Revoked   int    `db:"revoked"`
	CreatedAt int64  `db:"created_at"`
}

func tokenRowFromModel(t model.APIToken, position int) tokenRow {
	r := tokenRow{
		ID:        t.ID,
		TokenHash: t.Hash,
		Prefix:    t.Prefix,
		Label:     t.Label,
		Position:  position,
		CreatedAt: t.CreatedAt.UnixNano(),
	}
	if t.Revoked {
		r.Revoked = 1
	}
	return r
}

func (r tokenRow) toModel() model.APIToken {
	return model.APIToken{
		ID:        r.ID,
		Prefix:    r.Prefix,
		Hash:      r.TokenHash,
		Label:     r.Label,
		CreatedAt: fromUnixNano(r.CreatedAt),
		Revoked:   r.Revoked != 0,
	}
}

// Load reads the admin account and tokens. An empty database yields a nil
// account.
func (s *Store) Load(ctx context.Context) (*model.AdminAccount, []model.APIToken, error) {
	var admins []adminRow
	err := s.db.SelectContext(ctx, &admins,
		"SELECT id, username, password_hash, salt, created_at, updated_at FROM admin_account")
	if err != nil {
		return nil, nil, loadError("admin account", err)
	}
	if len(admins) > 1 {
		return nil, nil, fmt.Errorf("%w: %d admin accounts", ErrStorageCorrupt, len(admins))
	}

	var rows []tokenRow
	err = s.db.SelectContext(ctx, &rows,
		"SELECT id, token_hash, prefix, label, position, revoked, created_at FROM api_tokens ORDER BY position, id")
	if err != nil {
		return nil, nil, loadError("api tokens", err)
	}

	var account *model.AdminAccount
	if len(admins) == 1 {
		account = admins[0].toModel()
	}
	var tokens []model.APIToken
	for _, r := range rows {
		tokens = append(tokens, r.toModel())
	}
	if err := validateSecrets(account, tokens); err != nil {
		return nil, nil, err
	}
	return account, tokens, nil
}

// Save replaces the admin account and all tokens in a single transaction.
func (s *Store) Save(ctx context.Context, account *model.AdminAccount, tokens []model.APIToken) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM api_tokens"); err != nil {
		return fmt.Errorf("clear api tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM admin_account"); err != nil {
		return fmt.Errorf("clear admin account: %w", err)
	}

	if account != nil {
		row := adminRow{
			ID:           1,
			Username:     account.Username,
			PasswordHash: account.PasswordHash,
			Salt:         account.Salt,
			CreatedAt:    account.CreatedAt.UnixNano(),
			UpdatedAt:    account.UpdatedAt.UnixNano(),
		}
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO admin_account (id, username, password_hash, salt, created_at, updated_at)
			 VALUES (:id, :username, :password_hash, :salt, :created_at, :updated_at)`, row)
		if err != nil {
			return fmt.Errorf("insert admin account: %w", err)
		}
	}

	for i, t := range tokens {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO api_tokens (id, token_hash, prefix, label, position, revoked, created_at)
			 VALUES (:id, :token_hash, :prefix, :label, :position, :revoked, :created_at)`,
			tokenRowFromModel(t, i))
		if err != nil {
			return fmt.Errorf("insert api token %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit secrets: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashToken returns the hex-encoded SHA-256 hash of a raw API token.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// loadError marks column conversion failures as corruption; anything else
// is reported as a plain database error.
func loadError(what string, err error) error {
	if strings.Contains(err.Error(), "Scan error") || strings.Contains(err.Error(), "converting") {
		return fmt.Errorf("%w: read %s: %v", ErrStorageCorrupt, what, err)
	}
	return fmt.Errorf("read %s: %w", what, err)
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
