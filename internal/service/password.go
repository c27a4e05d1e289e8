package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// MinPasswordLength is the shortest password accepted on change or reset.
const MinPasswordLength = 8

const saltBytes = 16

// PasswordParams are the Argon2id cost settings.
type PasswordParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultPasswordParams follow the RFC 9106 second recommended option.
var DefaultPasswordParams = PasswordParams{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
}

// PasswordHasher computes and verifies salted Argon2id hashes. It holds no
// state besides its parameters and is safe for concurrent use.
type PasswordHasher struct {
	params PasswordParams
}

// NewPasswordHasher returns a hasher using p.
func NewPasswordHasher(p PasswordParams) *PasswordHasher {
	return &PasswordHasher{params: p}
}

// Hash returns the hex-encoded Argon2id hash of password under salt.
func (h *PasswordHasher) Hash(password, salt string) string {
	return hex.EncodeToString(h.derive(password, saltBytesOf(salt)))
}

// Verify reports whether password hashes to expectedHash under salt. A
// malformed hash never verifies.
func (h *PasswordHasher) Verify(password, salt, expectedHash string) bool {
	want, err := hex.DecodeString(expectedHash)
	if err != nil || len(want) == 0 {
		return false
	}
	got := h.derive(password, saltBytesOf(salt))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// saltBytesOf decodes a hex salt. Any other string, the empty one included,
// is used as raw bytes.
func saltBytesOf(salt string) []byte {
	if b, err := hex.DecodeString(salt); err == nil && len(b) > 0 {
		return b
	}
	return []byte(salt)
}

func (h *PasswordHasher) derive(password string, salt []byte) []byte {
	p := h.params
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// GenerateSalt returns 16 random bytes, hex-encoded.
func GenerateSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
