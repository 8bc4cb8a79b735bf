// Package mfa provides TOTP second factors and single-use backup codes.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/logging"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/store"
)

var (
	ErrInvalidCode    = errors.New("invalid or already used code")
	ErrRequired       = errors.New("mfa code required")
	ErrNotEnabled     = errors.New("mfa not enabled")
	ErrAlreadyEnabled = errors.New("mfa already enabled")
	ErrInvalidSecret  = errors.New("invalid totp secret")
)

// Store is the persistence MFA needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
	EnableMFA(ctx context.Context, userID, secret string, at time.Time) error
	DisableMFA(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string, now time.Time) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string, now time.Time) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
}

// Recorder receives MFA security events.
type Recorder interface {
	Record(ctx context.Context, e telemetry.Entry) error
}

type Config struct {
	Issuer string `mapstructure:"issuer"`
	// Skew is how many 30 second steps either side of now are accepted.
	Skew             uint `mapstructure:"skew"`
	BackupCodeCount  int  `mapstructure:"backup_code_count"`
	BackupCodeDigits int  `mapstructure:"backup_code_digits"`
}

func DefaultConfig() Config {
	return Config{
		Issuer:           "sessioncore",
		Skew:             1,
		BackupCodeCount:  8,
		BackupCodeDigits: 8,
	}
}

// Enrollment is a secret offered to a user before it is confirmed.
type Enrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type Engine struct {
	store    Store
	recorder Recorder
	clock    clock.Clock
	logger   *zap.Logger
	config   Config
}

// New returns an Engine. A zero Config selects DefaultConfig; Skew is taken
// as given once any field is set.
func New(s Store, recorder Recorder, clk clock.Clock, logger *zap.Logger, cfg Config) *Engine {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	d := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = d.Issuer
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = d.BackupCodeCount
	}
	if cfg.BackupCodeDigits <= 0 {
		cfg.BackupCodeDigits = d.BackupCodeDigits
	}
	return &Engine{
		store:    s,
		recorder: recorder,
		clock:    clock.OrSystem(clk),
		logger:   logging.OrNop(logger),
		config:   cfg,
	}
}

// ValidateCode checks code against secret at the engine's current time.
func (e *Engine) ValidateCode(code, secret string) bool {
	return ValidateCodeAt(code, secret, e.clock.Now(), e.config.Skew)
}

// Setup returns a fresh secret and its provisioning URI. Nothing is stored
// until Enable confirms a code.
func (e *Engine) Setup(ctx context.Context, userID, account string) (Enrollment, error) {
	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return Enrollment{}, err
	}
	if u.MFAEnabled {
		return Enrollment{}, ErrAlreadyEnabled
	}
	if account == "" {
		account = u.Email
	}
	secret, err := GenerateSecret()
	if err != nil {
		return Enrollment{}, err
	}
	uri, err := ProvisioningURI(e.config.Issuer, account, secret)
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: secret, URI: uri}, nil
}

// Enable persists secret once code proves the user holds it, and returns the
// initial backup codes.
func (e *Engine) Enable(ctx context.Context, userID, secret, code string) ([]string, error) {
	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, ErrAlreadyEnabled
	}
	raw, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}
	if len(raw) != secretBytes {
		return nil, ErrInvalidSecret
	}
	if !e.ValidateCode(code, secret) {
		e.record(ctx, telemetry.KindMFAVerificationFailed, userID, map[string]any{"stage": "enable"})
		return nil, ErrInvalidCode
	}
	codes, hashes, err := e.newBackupCodes(userID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if err := e.store.EnableMFA(ctx, userID, secret, now); err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, userID, hashes, now); err != nil {
		// MFA must never stay on without a way back in.
		if derr := e.store.DisableMFA(ctx, userID); derr != nil {
			e.logger.Error("mfa rollback failed", zap.String("user_id", userID), zap.Error(derr))
		}
		return nil, err
	}
	e.record(ctx, telemetry.KindMFAEnabled, userID, nil)
	return codes, nil
}

// Disable clears the secret and backup codes after a valid TOTP or backup
// code.
func (e *Engine) Disable(ctx context.Context, userID, code string) error {
	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return ErrNotEnabled
	}
	if !e.ValidateCode(code, u.TOTPSecret) {
		if err := e.VerifyBackupCode(ctx, userID, code); err != nil {
			if errors.Is(err, ErrInvalidCode) {
				e.record(ctx, telemetry.KindMFAVerificationFailed, userID, map[string]any{"stage": "disable"})
			}
			return err
		}
	}
	if err := e.store.DisableMFA(ctx, userID); err != nil {
		return err
	}
	e.record(ctx, telemetry.KindMFADisabled, userID, nil)
	return nil
}

// VerifyLogin checks the second factor for a user with MFA enabled. A TOTP
// code takes precedence over a backup code when both are given.
func (e *Engine) VerifyLogin(ctx context.Context, u store.User, totpCode, backupCode string) error {
	if !u.MFAEnabled {
		return nil
	}
	switch {
	case totpCode != "":
		if e.ValidateCode(totpCode, u.TOTPSecret) {
			return nil
		}
	case backupCode != "":
		err := e.VerifyBackupCode(ctx, u.ID, backupCode)
		if !errors.Is(err, ErrInvalidCode) {
			return err
		}
	default:
		return ErrRequired
	}
	e.record(ctx, telemetry.KindMFAVerificationFailed, u.ID, map[string]any{"stage": "login"})
	return ErrInvalidCode
}

// GenerateBackupCodes replaces the user's backup codes with a fresh set and
// returns them in plain text. Only salted hashes are stored.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	codes, hashes, err := e.newBackupCodes(userID)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, userID, hashes, e.clock.Now()); err != nil {
		return nil, err
	}
	return codes, nil
}

func (e *Engine) newBackupCodes(userID string) (codes, hashes []string, err error) {
	codes = make([]string, e.config.BackupCodeCount)
	hashes = make([]string, e.config.BackupCodeCount)
	for i := range codes {
		c, err := internal.RandomDigits(e.config.BackupCodeDigits)
		if err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = c
		hashes[i] = backupHash(userID, c)
	}
	return codes, hashes, nil
}

// RegenerateBackupCodes replaces the backup codes of a user with MFA enabled.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled {
		return nil, ErrNotEnabled
	}
	codes, err := e.GenerateBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.record(ctx, telemetry.KindBackupCodesRegenerated, userID, nil)
	return codes, nil
}

// VerifyBackupCode consumes code. Unknown and already used codes both return
// ErrInvalidCode.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) error {
	code = normalizeCode(code)
	if len(code) != e.config.BackupCodeDigits || !isDigits(code) {
		return ErrInvalidCode
	}
	ok, err := e.store.ConsumeBackupCode(ctx, userID, backupHash(userID, code), e.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	e.record(ctx, telemetry.KindBackupCodeUsed, userID, nil)
	return nil
}

func (e *Engine) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return e.store.CountUnusedBackupCodes(ctx, userID)
}

func (e *Engine) record(ctx context.Context, kind telemetry.Kind, userID string, detail map[string]any) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, telemetry.Entry{Kind: kind, SubjectID: userID, Detail: detail}); err != nil {
		e.logger.Warn("mfa event not recorded", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func backupHash(userID, code string) string {
	return internal.HashSalted(userID, code)
}
