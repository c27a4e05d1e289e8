package service

import "testing"

func TestPasswordHashVerify(t *testing.T) {
	h := NewPasswordHasher(testParams)
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}

	hash := h.Hash("s3cret-pass", salt)
	if hash != h.Hash("s3cret-pass", salt) {
		t.Fatal("Hash is not deterministic")
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash))
	}
	if !h.Verify("s3cret-pass", salt, hash) {
		t.Fatal("Verify rejected the correct password")
	}

	// Every single-character mutation must fail.
	pw := []byte("s3cret-pass")
	for i := range pw {
		mutated := append([]byte(nil), pw...)
		mutated[i] ^= 0x01
		if h.Verify(string(mutated), salt, hash) {
			t.Errorf("Verify accepted mutation at position %d: %q", i, mutated)
		}
	}
	if h.Verify("s3cret-pas", salt, hash) {
		t.Error("Verify accepted truncated password")
	}
	if h.Verify("s3cret-pass!", salt, hash) {
		t.Error("Verify accepted extended password")
	}
}

func TestPasswordSaltMatters(t *testing.T) {
	h := NewPasswordHasher(testParams)
	s1, _ := GenerateSalt()
	s2, _ := GenerateSalt()
	if s1 == s2 {
		t.Fatal("GenerateSalt returned the same salt twice")
	}
	if len(s1) != 32 {
		t.Errorf("salt length = %d, want 32 hex chars", len(s1))
	}
	if h.Hash("pw", s1) == h.Hash("pw", s2) {
		t.Error("different salts produced the same hash")
	}
}

func TestPasswordVerifyMalformed(t *testing.T) {
	h := NewPasswordHasher(testParams)
	salt, _ := GenerateSalt()
	hash := h.Hash("pw", salt)

	tests := []struct {
		name, salt, hash string
	}{
		{"non-hex hash", salt, "not-hex"},
		{"empty hash", salt, ""},
		{"short hash", salt, hash[:10]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if h.Verify("pw", tt.salt, tt.hash) {
				t.Error("Verify returned true for malformed input")
			}
		})
	}
}

func TestPasswordRoundTripAnySalt(t *testing.T) {
	h := NewPasswordHasher(testParams)
	generated, _ := GenerateSalt()

	for _, salt := range []string{"", "salt", "abc", "zz-not-hex", "ABCDEF", generated} {
		t.Run(salt, func(t *testing.T) {
			hash := h.Hash("s3cret-pass", salt)
			if !h.Verify("s3cret-pass", salt, hash) {
				t.Errorf("Verify rejected the hash produced for salt %q", salt)
			}
			if h.Verify("wrong-pass", salt, hash) {
				t.Errorf("Verify accepted a wrong password for salt %q", salt)
			}
		})
	}
}
