package password

import (
	"errors"
	"strings"
	"testing"
)

func fastArgon2() Argon2Config {
	return Argon2Config{
		Memory:      minMemoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func hashers(t *testing.T) map[string]Hasher {
	t.Helper()
	b, err := NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	a, err := NewArgon2(fastArgon2())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return map[string]Hasher{"bcrypt": b, "argon2id": a}
}

func TestHashAndVerifyAllHashers(t *testing.T) {
	for name, h := range hashers(t) {
		t.Run(name, func(t *testing.T) {
			encoded, err := h.Hash("correct horse 9")
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			ok, err := h.Verify("correct horse 9", encoded)
			if err != nil || !ok {
				t.Fatalf("Verify(correct) = %v, %v", ok, err)
			}
			ok, err = h.Verify("wrong horse 9", encoded)
			if err != nil || ok {
				t.Fatalf("Verify(wrong) = %v, %v", ok, err)
			}
			if _, err := h.Verify("x", "not-a-hash"); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("expected ErrMalformedHash, got %v", err)
			}
			h.DummyVerify("anything")
		})
	}
}

func TestNewSelectsAlgorithm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BcryptCost = 4
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := h.(*Bcrypt); !ok {
		t.Fatalf("default should be bcrypt, got %T", h)
	}

	cfg.Algorithm = "argon2id"
	cfg.Argon2 = fastArgon2()
	h, err = New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := h.(*Argon2); !ok {
		t.Fatalf("expected argon2, got %T", h)
	}

	cfg.Algorithm = "md5"
	if _, err := New(cfg); !errors.Is(err, ErrUnknownAlgo) {
		t.Fatalf("expected ErrUnknownAlgo, got %v", err)
	}
}

func TestBcryptRejectsOverlongPassword(t *testing.T) {
	b, _ := NewBcrypt(4)
	if _, err := b.Hash(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := NewBcrypt(99); err == nil {
		t.Fatal("expected invalid cost to fail")
	}
}

func TestBcryptNeedsUpgrade(t *testing.T) {
	low, _ := NewBcrypt(4)
	high, _ := NewBcrypt(5)
	encoded, _ := low.Hash("upgrade-me-1")
	if up, err := high.NeedsUpgrade(encoded); err != nil || !up {
		t.Fatalf("expected upgrade, got %v %v", up, err)
	}
	if up, err := low.NeedsUpgrade(encoded); err != nil || up {
		t.Fatalf("expected no upgrade, got %v %v", up, err)
	}
}

func TestArgon2PHCFormat(t *testing.T) {
	a, _ := NewArgon2(fastArgon2())
	encoded, err := a.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}
	wrongVersion := strings.Replace(encoded, "$v=19$", "$v=18$", 1)
	if _, err := a.Verify("P@ssw0rd-Ascii", wrongVersion); err == nil {
		t.Fatal("expected unsupported version to fail")
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak, _ := NewArgon2(fastArgon2())
	encoded, _ := weak.Hash("test-password")

	strongCfg := fastArgon2()
	strongCfg.Time = 2
	strong, _ := NewArgon2(strongCfg)

	if up, err := strong.NeedsUpgrade(encoded); err != nil || !up {
		t.Fatalf("expected upgrade, got %v %v", up, err)
	}
	if up, err := weak.NeedsUpgrade(encoded); err != nil || up {
		t.Fatalf("expected no upgrade, got %v %v", up, err)
	}
}

func TestArgon2RejectsWeakConfig(t *testing.T) {
	cfg := fastArgon2()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected low memory to be rejected")
	}
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	cases := map[string]bool{
		"short1":                 false,
		"onlyletterslong":        false,
		"1234567890123":          false,
		"letters-and-99":         true,
		strings.Repeat("a1", 40): false,
	}
	for pw, ok := range cases {
		err := p.Check(pw)
		if ok && err != nil {
			t.Errorf("%q rejected: %v", pw, err)
		}
		if !ok && !errors.Is(err, ErrPolicy) {
			t.Errorf("%q accepted", pw)
		}
	}
}
