// Package reqctx carries per-request client metadata (address, user agent)
// through context so components below the HTTP layer can attribute events.
package reqctx

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// Info is the request metadata attached to security events and login attempts.
type Info struct {
	IP        string
	UserAgent string
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func UserAgent(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ua, _ := ctx.Value(userAgentContextKey{}).(string)
	return ua
}

// FromContext collects both values. Missing values are empty strings.
func FromContext(ctx context.Context) Info {
	return Info{IP: ClientIP(ctx), UserAgent: UserAgent(ctx)}
}
