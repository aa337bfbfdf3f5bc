package auth

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrTokenExpired     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("token type is not accepted here")
	ErrMissingClaims    = errors.New("token is missing required claims")
)
