package auth

import "errors"

var (
	ErrDuplicateAccount   = errors.New("an account with that username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrTokenVersion       = errors.New("token version mismatch")
)
