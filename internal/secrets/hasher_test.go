package secrets

import (
	"strings"
	"testing"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	// Minimum-cost parameters keep the test suite fast.
	h, err := NewHasher(HasherConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", encoded)
	}

	ok, err := h.Verify(encoded, "Passw0rd!")
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}

	ok, err = h.Verify(encoded, "passw0rd!")
	if err != nil {
		t.Fatalf("Verify(wrong): %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Hash("same input")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two hashes of the same input are identical; salt is not random")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := newTestHasher(t)

	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaA",
	}
	for _, encoded := range cases {
		if _, err := h.Verify(encoded, "anything"); err == nil {
			t.Errorf("Verify accepted malformed hash %q", encoded)
		}
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	weak := []HasherConfig{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range weak {
		if _, err := NewHasher(cfg); err == nil {
			t.Errorf("case %d: weak config accepted", i)
		}
	}
}

func TestNewOpaqueSecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		s, err := NewOpaqueSecret()
		if err != nil {
			t.Fatalf("NewOpaqueSecret: %v", err)
		}
		if len(s) != 43 { // 32 bytes base64url without padding
			t.Fatalf("unexpected secret length %d", len(s))
		}
		if seen[s] {
			t.Fatal("duplicate secret generated")
		}
		seen[s] = true
	}
}

func TestHashOpaqueSecretIsDeterministic(t *testing.T) {
	a := HashOpaqueSecret("secret")
	b := HashOpaqueSecret("secret")
	if string(a) != string(b) {
		t.Fatal("digests of the same secret differ")
	}
	if string(a) == string(HashOpaqueSecret("other")) {
		t.Fatal("digests of different secrets collide")
	}
	if len(a) != 32 {
		t.Fatalf("unexpected digest length %d", len(a))
	}
}

func TestNewNumericCode(t *testing.T) {
	code, err := NewNumericCode(6)
	if err != nil {
		t.Fatalf("NewNumericCode: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("unexpected code length %d", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in code %s", r, code)
		}
	}

	if _, err := NewNumericCode(4); err == nil {
		t.Fatal("accepted too-short code length")
	}
}

func TestHashBackupCodeBindsAccount(t *testing.T) {
	if HashBackupCode("acct-1", "123456") == HashBackupCode("acct-2", "123456") {
		t.Fatal("backup code hash must differ across accounts")
	}
	if HashBackupCode("acct-1", " 123456 ") != HashBackupCode("acct-1", "123456") {
		t.Fatal("backup code hash must ignore surrounding whitespace")
	}
}
