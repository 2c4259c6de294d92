package service

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSecret    = errors.New("invalid secret")
	ErrMissingShortcut  = errors.New("token and userid are required")
	ErrUnknownPrincipal = errors.New("user not found")
	ErrNoWalletSession  = errors.New("no wallet session")
	ErrNoBalance        = errors.New("no community token balance")
	ErrNotAllowedNow    = errors.New("no access at this time")
)
