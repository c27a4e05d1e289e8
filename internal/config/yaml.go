package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level toolgate configuration file.
type YAMLConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`
	RequestLog RequestLogConfig `yaml:"request_log"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects where secrets and the request log are kept.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	Driver  string `yaml:"driver"` // file, sqlite, postgres, mysql
	DSN     string `yaml:"dsn,omitempty"`
}

// AuthConfig controls the admin account, sessions and login throttling.
type AuthConfig struct {
	AdminUsername   string `yaml:"admin_username"`
	DefaultPassword string `yaml:"default_password,omitempty"` // development only
	SessionTTL      string `yaml:"session_ttl"`
	MaxFailedLogins int    `yaml:"max_failed_logins"`
	LockoutDuration string `yaml:"lockout_duration"`
	LoginRateLimit  int    `yaml:"login_rate_limit"` // per IP per minute
	CookieSecure    bool   `yaml:"cookie_secure"`
}

// RequestLogConfig controls the request log.
type RequestLogConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxRecords int  `yaml:"max_records"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Keys missing from the file keep their default values.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
// DataDir is left empty; callers resolve it to ~/.toolgate.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			CORSOrigins: []string{},
		},
		Storage: StorageConfig{
			Driver: DriverFile,
		},
		Auth: AuthConfig{
			AdminUsername:   "admin",
			SessionTTL:      "24h",
			MaxFailedLogins: 5,
			LockoutDuration: "5m",
			LoginRateLimit:  20,
		},
		RequestLog: RequestLogConfig{
			Enabled:    true,
			MaxRecords: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Settings flattens the configuration into dotted keys, the form viper uses
// for defaults.
func (c *YAMLConfig) Settings() map[string]interface{} {
	return map[string]interface{}{
		"server.host":             c.Server.Host,
		"server.port":             c.Server.Port,
		"server.cors_origins":     c.Server.CORSOrigins,
		"storage.data_dir":        c.Storage.DataDir,
		"storage.driver":          c.Storage.Driver,
		"storage.dsn":             c.Storage.DSN,
		"auth.admin_username":     c.Auth.AdminUsername,
		"auth.default_password":   c.Auth.DefaultPassword,
		"auth.session_ttl":        c.Auth.SessionTTL,
		"auth.max_failed_logins":  c.Auth.MaxFailedLogins,
		"auth.lockout_duration":   c.Auth.LockoutDuration,
		"auth.login_rate_limit":   c.Auth.LoginRateLimit,
		"auth.cookie_secure":      c.Auth.CookieSecure,
		"request_log.enabled":     c.RequestLog.Enabled,
		"request_log.max_records": c.RequestLog.MaxRecords,
		"logging.level":           c.Logging.Level,
		"logging.format":          c.Logging.Format,
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file. It
// refuses to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}
