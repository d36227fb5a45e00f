package domain

import "errors"

var (
	ErrUnknownPage       = errors.New("no access token configured for page")
	ErrUnknownPersona    = errors.New("persona not configured")
	ErrSignatureMissing  = errors.New("request signature missing")
	ErrSignatureMismatch = errors.New("request signature mismatch")
	ErrProfileNotFound   = errors.New("profile not found")
)
