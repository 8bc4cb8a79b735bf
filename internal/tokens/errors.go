package tokens

import "errors"

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRevocationUnavailable means the revocation store could not be read.
	// Authorization must treat it as a rejection.
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
)
