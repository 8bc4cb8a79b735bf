package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/sessioncore"
)

// RateLimit counts each request against its tier. The caller is keyed by the
// subject of a well-signed bearer token, else by client address. Run it
// after ClientInfo.
func RateLimit(engine *sessioncore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !engine.RateLimitEnabled() {
				next.ServeHTTP(w, r)
				return
			}
			bearer, _ := bearerToken(r.Header.Get("Authorization"))
			ip := sessioncore.ClientIP(r.Context())
			if ip == "" {
				ip = clientIP(r, false)
			}
			id := engine.RateLimitIdentifier(bearer, ip)

			d, err := engine.CheckRateLimit(r.Context(), id, r.URL.Path, r.Method)
			if err != nil {
				if errors.Is(err, sessioncore.ErrRateLimited) {
					setRateHeaders(w, d)
					retry := int64(math.Ceil(d.RetryAfter.Seconds()))
					if retry < 1 {
						retry = 1
					}
					w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
					w.Header().Set("Cache-Control", "no-store")
				}
				WriteError(w, engine.Logger(), err)
				return
			}
			setRateHeaders(w, d)
			next.ServeHTTP(w, r)
		})
	}
}

func setRateHeaders(w http.ResponseWriter, d sessioncore.RateLimitDecision) {
	if d.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
