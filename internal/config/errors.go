package config

import "errors"

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrStorageCorrupt is returned by SecretStore.Load when persisted state exists
// but cannot be parsed or violates the store's invariants. Callers must not
// fall back to an empty state: doing so would silently wipe admin access.
var ErrStorageCorrupt = errors.New("secret storage corrupt")
