package flows

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/logging"
)

type SignupRequest struct {
	Email    string
	Password string
}

// SignupMetrics carries metric IDs needed by the signup flow.
type SignupMetrics struct {
	AccountCreated   int
	AccountDuplicate int
}

// SignupErrors carries host-level sentinel errors used by the signup flow.
type SignupErrors struct {
	EngineNotReady error
	InvalidEmail   error
	AccountExists  error
	Conflict       error
}

// SignupDeps captures signup dependencies.
type SignupDeps struct {
	CheckPassword func(password string) error
	HashPassword  func(password string) (string, error)
	NewUserID     func() string
	CreateUser    func(ctx context.Context, u User) error
	// SendWelcome runs in its own goroutine; its error is only logged.
	SendWelcome func(ctx context.Context, email string) error

	Record    RecordFunc
	MetricInc func(int)
	Logger    *zap.Logger

	CreatedEvent string
	Metrics      SignupMetrics
	Errors       SignupErrors
}

// RunSignup validates and stores a new account. The caller logs the user in
// afterwards with the same credentials.
func RunSignup(ctx context.Context, req SignupRequest, deps SignupDeps) (User, error) {
	if deps.CheckPassword == nil ||
		deps.HashPassword == nil ||
		deps.NewUserID == nil ||
		deps.CreateUser == nil {
		return User{}, deps.Errors.EngineNotReady
	}
	if deps.Record == nil {
		deps.Record = nopRecord
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}
	logger := logging.OrNop(deps.Logger)

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return User{}, deps.Errors.InvalidEmail
	}
	if err := deps.CheckPassword(req.Password); err != nil {
		return User{}, err
	}
	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return User{}, err
	}

	u := User{ID: deps.NewUserID(), Email: email, PasswordHash: hash}
	if err := deps.CreateUser(ctx, u); err != nil {
		if errors.Is(err, deps.Errors.Conflict) {
			deps.MetricInc(deps.Metrics.AccountDuplicate)
			return User{}, deps.Errors.AccountExists
		}
		return User{}, err
	}

	deps.MetricInc(deps.Metrics.AccountCreated)
	deps.Record(ctx, deps.CreatedEvent, u.ID, nil)

	if deps.SendWelcome != nil {
		mailCtx := context.WithoutCancel(ctx)
		go func() {
			if err := deps.SendWelcome(mailCtx, email); err != nil {
				logger.Warn("welcome mail failed", zap.String("user_id", u.ID), zap.Error(err))
			}
		}()
	}

	u.PasswordHash = ""
	return u, nil
}
