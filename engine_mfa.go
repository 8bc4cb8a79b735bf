package sessioncore

import (
	"context"

	"github.com/MrEthical07/sessioncore/internal/telemetry"
)

// SetupMFA returns a fresh TOTP secret and provisioning URI. Nothing is
// stored until EnableMFA confirms a code generated from it.
func (e *Engine) SetupMFA(ctx context.Context, userID string) (MFAEnrollment, error) {
	if e == nil || e.mfa == nil {
		return MFAEnrollment{}, ErrEngineNotReady
	}
	return e.mfa.Setup(ctx, userID, "")
}

// EnableMFA stores secret after code proves possession and returns the first
// set of backup codes. The codes are shown once and never again.
func (e *Engine) EnableMFA(ctx context.Context, userID, secret, code string) ([]string, error) {
	if e == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}
	codes, err := e.mfa.Enable(ctx, userID, secret, code)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		return nil, err
	}
	e.metricInc(MetricMFAEnabled)
	return codes, nil
}

// DisableMFA accepts a TOTP code or a backup code.
func (e *Engine) DisableMFA(ctx context.Context, userID, code string) error {
	if e == nil || e.mfa == nil {
		return ErrEngineNotReady
	}
	if err := e.mfa.Disable(ctx, userID, code); err != nil {
		e.metricInc(MetricMFAFailure)
		return err
	}
	e.metricInc(MetricMFADisabled)
	return nil
}

// RegenerateBackupCodes replaces every backup code. A current TOTP code is
// required so a stolen session alone cannot mint new codes.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if e == nil || e.mfa == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	if !e.mfa.ValidateCode(totpCode, u.TOTPSecret) {
		e.metricInc(MetricMFAFailure)
		e.record(ctx, telemetry.KindMFAVerificationFailed, userID, map[string]any{"stage": "regenerate"})
		return nil, ErrMFAInvalidCode
	}
	codes, err := e.mfa.RegenerateBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricBackupCodeRegenerated)
	return codes, nil
}

func (e *Engine) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	if e == nil || e.mfa == nil {
		return 0, ErrEngineNotReady
	}
	return e.mfa.RemainingBackupCodes(ctx, userID)
}
