package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/store"
)

// ErrBadRequest marks a malformed request body or parameter.
var ErrBadRequest = errors.New("bad request")

type errorMapping struct {
	err     error
	status  int
	message string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{sessioncore.ErrMFARequired, http.StatusUnauthorized, "mfa code required"},
	{sessioncore.ErrMFAInvalidCode, http.StatusUnauthorized, "invalid mfa code"},
	{sessioncore.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{sessioncore.ErrTokenExpired, http.StatusUnauthorized, "token expired"},
	{sessioncore.ErrTokenRevoked, http.StatusUnauthorized, "unauthorized"},
	{sessioncore.ErrTokenInvalid, http.StatusUnauthorized, "unauthorized"},
	{sessioncore.ErrRevocationUnavailable, http.StatusUnauthorized, "unauthorized"},
	{sessioncore.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},

	{sessioncore.ErrCSRFMissing, http.StatusForbidden, "invalid csrf token"},
	{sessioncore.ErrCSRFMalformed, http.StatusForbidden, "invalid csrf token"},
	{sessioncore.ErrCSRFMismatch, http.StatusForbidden, "invalid csrf token"},
	{sessioncore.ErrCSRFNotFound, http.StatusForbidden, "invalid csrf token"},

	{sessioncore.ErrRateLimited, http.StatusTooManyRequests, "too many requests"},
	{sessioncore.ErrIPBlocked, http.StatusTooManyRequests, "too many failed attempts, try again later"},

	{sessioncore.ErrAccountExists, http.StatusConflict, "account already exists"},

	{sessioncore.ErrPasswordPolicy, http.StatusBadRequest, "password does not meet policy"},
	{sessioncore.ErrInvalidEmail, http.StatusBadRequest, "invalid email address"},
	{sessioncore.ErrMFAAlreadyEnabled, http.StatusBadRequest, "mfa already enabled"},
	{sessioncore.ErrMFANotEnabled, http.StatusBadRequest, "mfa not enabled"},
	{sessioncore.ErrMFAInvalidSecret, http.StatusBadRequest, "invalid mfa secret"},
	{ErrBadRequest, http.StatusBadRequest, "bad request"},

	{store.ErrNotFound, http.StatusNotFound, "not found"},

	{sessioncore.ErrStoreTimeout, http.StatusServiceUnavailable, "service unavailable"},
	{sessioncore.ErrStoreUnavailable, http.StatusServiceUnavailable, "service unavailable"},
	{sessioncore.ErrRateLimitUnavailable, http.StatusServiceUnavailable, "service unavailable"},
	{sessioncore.ErrEngineNotReady, http.StatusServiceUnavailable, "service unavailable"},
}

// StatusFor returns the HTTP status and public message for err.
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes {"error": msg} with the mapped status. Unmapped errors
// are logged; their text never reaches the client.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.Error(err))
	}
	WriteJSON(w, status, errorBody{Error: msg})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
