package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessioncore"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*sessioncore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*sessioncore.Principal)
	return p, ok
}

// RequireAuth verifies the bearer access token and stores the principal in
// the request context. Any failure answers 401.
func RequireAuth(engine *sessioncore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := bearerToken(r.Header.Get("Authorization"))
			p, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, engine.Logger(), err)
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCSRF validates the CSRF header and cookie on state-changing
// methods. Behind RequireAuth the token must belong to the principal.
func RequireCSRF(engine *sessioncore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string
			if p, ok := PrincipalFromContext(r.Context()); ok {
				userID = p.UserID
			}
			if err := engine.ValidateCSRF(r.Context(), r, userID); err != nil {
				WriteError(w, engine.Logger(), err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	tok, _ := bearerToken(r.Header.Get("Authorization"))
	return tok
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
