package model

import "time"

// AdminAccount is the single administrative identity of a deployment. The
// password is stored as a salted Argon2id hash; the salt is generated once
// when the account is bootstrapped.
type AdminAccount struct {
	Username     string    `json:"username" yaml:"username" db:"username"`
	PasswordHash string    `json:"-" yaml:"password_hash" db:"password_hash"` // hex Argon2id, never expose
	Salt         string    `json:"-" yaml:"salt" db:"salt"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at" db:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at" db:"-"`
}

// Clone returns a copy of the account, or nil for a nil receiver.
func (a *AdminAccount) Clone() *AdminAccount {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
