package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	fslock "github.com/ipfs/go-fs-lock"
	"github.com/spf13/viper"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// lockFileName guards the data directory against concurrent writers.
const lockFileName = "toolgate.lock"

// resolveDataDir returns the data directory from --data-dir flag,
// storage.data_dir (file or TOOLGATE_STORAGE_DATA_DIR), or ~/.toolgate as
// fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if d := viper.GetString("storage.data_dir"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".toolgate")
}

// lockDataDir takes the data directory lock. It fails fast when a server or
// another CLI command holds it.
func lockDataDir(dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lk, err := fslock.Lock(dir, lockFileName)
	if err != nil {
		return nil, fmt.Errorf("data directory %s is in use (is toolgate serve running?): %w", dir, err)
	}
	return lk, nil
}

// stores bundles the secret store and the SQL store holding the request log.
// With the file driver they are different; otherwise they are the same
// database.
type stores struct {
	secrets config.SecretStore
	sql     *config.Store
}

func (s *stores) Close() {
	if s.secrets != nil && s.secrets != config.SecretStore(s.sql) {
		s.secrets.Close()
	}
	if s.sql != nil {
		s.sql.Close()
	}
}

// openStores opens the configured storage backend in dir.
func openStores(dir string) (*stores, error) {
	driver := viper.GetString("storage.driver")
	dsn := viper.GetString("storage.dsn")

	switch driver {
	case "", config.DriverFile:
		secrets, err := config.NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		sqlStore, err := config.NewStore(dir)
		if err != nil {
			return nil, fmt.Errorf("open request log: %w", err)
		}
		return &stores{secrets: secrets, sql: sqlStore}, nil
	case config.DriverSQLite:
		var (
			sqlStore *config.Store
			err      error
		)
		if dsn == "" {
			sqlStore, err = config.NewStore(dir)
		} else {
			sqlStore, err = config.Open(driver, dsn)
		}
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &stores{secrets: sqlStore, sql: sqlStore}, nil
	case config.DriverPostgres, config.DriverMySQL:
		if dsn == "" {
			return nil, fmt.Errorf("storage.dsn is required for the %s driver", driver)
		}
		sqlStore, err := config.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", driver, err)
		}
		return &stores{secrets: sqlStore, sql: sqlStore}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q (use file, sqlite, postgres or mysql)", driver)
	}
}

// newLogger builds the process logger from logging.level and logging.format.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// authOptions reads the auth.* settings.
func authOptions(logger *slog.Logger) (service.Options, error) {
	ttl, err := parseDuration("auth.session_ttl")
	if err != nil {
		return service.Options{}, err
	}
	lockout, err := parseDuration("auth.lockout_duration")
	if err != nil {
		return service.Options{}, err
	}
	return service.Options{
		AdminUsername:   viper.GetString("auth.admin_username"),
		DefaultPassword: viper.GetString("auth.default_password"),
		SessionTTL:      ttl,
		MaxFailedLogins: viper.GetInt("auth.max_failed_logins"),
		LockoutDuration: lockout,
		Logger:          logger,
	}, nil
}

func parseDuration(key string) (time.Duration, error) {
	raw := viper.GetString(key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
