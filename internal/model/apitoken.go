package model

import "time"

// TokenPrefix is prepended to every raw API token and token ID so they are
// recognizable in configuration files and secret scanners.
const TokenPrefix = "mcp_"

// APIToken is a long-lived bearer credential for an MCP client. The raw token
// is never stored; only its SHA-256 hash and a short display prefix are
// persisted.
type APIToken struct {
	ID        string    `json:"id" yaml:"id"`
	Prefix    string    `json:"prefix" yaml:"prefix"` // first 12 chars of the raw token
	Hash      string    `json:"-" yaml:"hash"`        // SHA-256 hex, never expose
	Label     string    `json:"label" yaml:"label"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Revoked   bool      `json:"revoked" yaml:"revoked"`
}
