package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrPolicy          = errors.New("password does not meet policy")
	ErrUnknownAlgo     = errors.New("unknown password algorithm")
	ErrMalformedHash   = errors.New("malformed password hash")
	ErrPasswordTooLong = errors.New("password too long")
)

// Hasher produces and checks encoded password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded. A malformed encoded
	// hash is an error; a wrong password is (false, nil).
	Verify(password, encoded string) (bool, error)
	// DummyVerify burns one comparison's worth of work and always fails.
	DummyVerify(password string)
}

// Config selects and tunes the hasher.
type Config struct {
	Algorithm  string       `mapstructure:"algorithm"` // bcrypt | argon2id
	BcryptCost int          `mapstructure:"bcrypt_cost"`
	Argon2     Argon2Config `mapstructure:"argon2"`
	Policy     Policy       `mapstructure:"policy"`
}

func DefaultConfig() Config {
	return Config{
		Algorithm:  "bcrypt",
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Config(),
		Policy:     DefaultPolicy(),
	}
}

// New builds the hasher named by cfg.Algorithm.
func New(cfg Config) (Hasher, error) {
	switch strings.ToLower(cfg.Algorithm) {
	case "", "bcrypt":
		return NewBcrypt(cfg.BcryptCost)
	case algorithmID:
		return NewArgon2(cfg.Argon2)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgo, cfg.Algorithm)
}

// Policy bounds acceptable passwords at signup.
type Policy struct {
	MinBytes int `mapstructure:"min_bytes"`
	MaxBytes int `mapstructure:"max_bytes"`
	// RequireMixed asks for at least one letter and one non-letter.
	RequireMixed bool `mapstructure:"require_mixed"`
}

func DefaultPolicy() Policy {
	return Policy{MinBytes: 10, MaxBytes: 72, RequireMixed: true}
}

// Check returns ErrPolicy with a reason when password is not acceptable.
func (p Policy) Check(password string) error {
	if p.MinBytes > 0 && len(password) < p.MinBytes {
		return fmt.Errorf("%w: must be at least %d bytes", ErrPolicy, p.MinBytes)
	}
	if p.MaxBytes > 0 && len(password) > p.MaxBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPolicy, p.MaxBytes)
	}
	if p.RequireMixed {
		var letter, other bool
		for _, r := range password {
			if unicode.IsLetter(r) {
				letter = true
			} else {
				other = true
			}
		}
		if !letter || !other {
			return fmt.Errorf("%w: must mix letters with digits or symbols", ErrPolicy)
		}
	}
	return nil
}
