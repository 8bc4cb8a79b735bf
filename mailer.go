package sessioncore

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal"
	"github.com/MrEthical07/sessioncore/internal/logging"
)

// Mailer delivers account email. Calls are made fire-and-forget on their own
// goroutine, so an implementation may block on network I/O.
type Mailer interface {
	SendWelcome(ctx context.Context, email string) error
}

// LogMailer writes a log line instead of sending mail. Only the email hash is
// logged.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) SendWelcome(_ context.Context, email string) error {
	logging.OrNop(m.Logger).Info("welcome mail queued", zap.String("email_hash", internal.HashEmail(email)))
	return nil
}
