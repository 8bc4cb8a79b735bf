package sessioncore

import (
	"errors"

	"github.com/MrEthical07/sessioncore/internal/csrf"
	"github.com/MrEthical07/sessioncore/internal/mfa"
	"github.com/MrEthical07/sessioncore/internal/rate"
	"github.com/MrEthical07/sessioncore/internal/tokens"
	"github.com/MrEthical07/sessioncore/password"
	"github.com/MrEthical07/sessioncore/store"
)

// Errors raised by components are re-exported so callers only import the
// root package. Match them with errors.Is.
var (
	ErrTokenInvalid          = tokens.ErrTokenInvalid
	ErrTokenExpired          = tokens.ErrTokenExpired
	ErrTokenRevoked          = tokens.ErrTokenRevoked
	ErrRevocationUnavailable = tokens.ErrRevocationUnavailable

	ErrRateLimited          = rate.ErrRateLimited
	ErrRateLimitUnavailable = rate.ErrBackendUnavailable

	ErrCSRFMissing   = csrf.ErrMissing
	ErrCSRFMalformed = csrf.ErrMalformed
	ErrCSRFMismatch  = csrf.ErrMismatch
	ErrCSRFNotFound  = csrf.ErrNotFound

	ErrMFAInvalidCode    = mfa.ErrInvalidCode
	ErrMFARequired       = mfa.ErrRequired
	ErrMFANotEnabled     = mfa.ErrNotEnabled
	ErrMFAAlreadyEnabled = mfa.ErrAlreadyEnabled
	ErrMFAInvalidSecret  = mfa.ErrInvalidSecret

	ErrStoreTimeout     = store.ErrTimeout
	ErrStoreUnavailable = store.ErrUnavailable

	ErrPasswordPolicy = password.ErrPolicy
)

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIPBlocked is returned while the caller's address is blocked after
	// repeated login failures.
	ErrIPBlocked     = errors.New("ip address temporarily blocked")
	ErrAccountExists = errors.New("account already exists")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrUnauthorized  = errors.New("unauthorized")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
