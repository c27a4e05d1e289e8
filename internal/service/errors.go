package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNoSession          = errors.New("no session")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidToken       = errors.New("invalid api token")
	ErrUnknownToken       = errors.New("unknown api token")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrLabelRequired      = errors.New("token label is required")
	ErrLabelTooLong       = errors.New("token label must be at most 100 characters")
	ErrNotBootstrapped    = errors.New("admin account has not been created")
)
