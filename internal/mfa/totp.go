package mfa

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/sessioncore/internal"
)

const (
	secretBytes = 32
	period      = 30
	codeDigits  = 6
)

var validateOpts = totp.ValidateOpts{
	Period:    period,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateSecret returns 32 random bytes as unpadded Base32.
func GenerateSecret() (string, error) {
	raw, err := internal.RandomBytes(secretBytes)
	if err != nil {
		return "", err
	}
	return internal.Base32NoPad.EncodeToString(raw), nil
}

// GenerateCode returns the 6 digit code for the 30 second step containing t.
func GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, validateOpts)
}

// ValidateCodeAt accepts code when it matches any step within skew of t.
// Spaces and dashes in code are ignored.
func ValidateCodeAt(code, secret string, t time.Time, skew uint) bool {
	code = normalizeCode(code)
	if len(code) != codeDigits || !isDigits(code) || secret == "" {
		return false
	}
	ok := false
	for step := -int(skew); step <= int(skew); step++ {
		expected, err := GenerateCode(secret, t.Add(time.Duration(step*period)*time.Second))
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			ok = true
		}
	}
	return ok
}

// ProvisioningURI returns the otpauth:// URL an authenticator app scans.
func ProvisioningURI(issuer, account, secret string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      period,
		SecretSize:  uint(len(raw)),
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("build provisioning uri: %w", err)
	}
	return key.URL(), nil
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	raw, err := internal.Base32NoPad.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

func normalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, code)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
