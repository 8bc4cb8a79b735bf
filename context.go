package sessioncore

import (
	"context"

	"github.com/MrEthical07/sessioncore/internal/reqctx"
)

// WithClientIP attaches the caller's IP address to ctx. Login attempts,
// address blocks and security events are keyed by it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return reqctx.WithClientIP(ctx, ip)
}

// WithUserAgent attaches the HTTP User-Agent to ctx for attempt and event
// records.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return reqctx.WithUserAgent(ctx, userAgent)
}

// ClientIP returns the address attached with WithClientIP.
func ClientIP(ctx context.Context) string {
	return reqctx.ClientIP(ctx)
}
