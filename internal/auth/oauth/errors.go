package oauth

import "errors"

var (
	ErrProviderNotFound = errors.New("oauth provider not found")
	ErrInvalidRequest   = errors.New("invalid oauth request")
	ErrExchangeFailed   = errors.New("oauth code exchange failed")
)
