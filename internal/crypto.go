package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// SessionID binds an access/refresh pair issued by one login.
type SessionID [16]byte

// Base32NoPad is the RFC 4648 alphabet without padding, the form
// authenticator apps expect for TOTP secrets.
var Base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("invalid random size")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	raw, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// RandomDigits returns a string of n uniformly distributed decimal digits.
func RandomDigits(n int) (string, error) {
	if n < 6 || n > 10 {
		return "", errors.New("invalid digit count")
	}

	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// HashToken returns the lowercase hex SHA-256 of v. Raw tokens and emails
// never reach storage; only this digest does.
func HashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// HashSalted returns hex SHA-256 over salt ":" v.
func HashSalted(salt, v string) string {
	sum := sha256.Sum256([]byte(salt + ":" + v))
	return hex.EncodeToString(sum[:])
}

// HashEmail normalizes case and surrounding space before hashing so the same
// mailbox always maps to one digest.
func HashEmail(email string) string {
	return HashToken(strings.ToLower(strings.TrimSpace(email)))
}

// ConstantTimeEqual compares two strings without leaking the position of
// the first differing byte. Length differences return false immediately.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
