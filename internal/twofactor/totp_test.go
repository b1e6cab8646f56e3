package twofactor

import (
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B vectors. The RFC uses 8-digit codes.
func rfcManager(algorithm string) *Manager {
	return NewManager(Config{
		Issuer:    "authcore",
		Digits:    8,
		Period:    30,
		Skew:      0,
		Algorithm: algorithm,
	})
}

func TestVerifyCodeRFCVectorsSHA1(t *testing.T) {
	m := rfcManager("SHA1")
	secret := b32.EncodeToString([]byte("12345678901234567890"))

	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}
	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA1 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestVerifyCodeRFCVectorsSHA256(t *testing.T) {
	m := rfcManager("SHA256")
	secret := b32.EncodeToString([]byte("12345678901234567890123456789012"))

	cases := []struct {
		ts   int64
		code string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	}
	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA256 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestVerifyCodeRFCVectorsSHA512(t *testing.T) {
	m := rfcManager("SHA512")
	secret := b32.EncodeToString([]byte("1234567890123456789012345678901234567890123456789012345678901234"))

	cases := []struct {
		ts   int64
		code string
	}{
		{59, "90693936"},
		{1111111109, "25091201"},
		{1111111111, "99943326"},
		{1234567890, "93441116"},
		{2000000000, "38618901"},
		{20000000000, "47863826"},
	}
	for _, tc := range cases {
		ok, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA512 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestVerifyCodeSkewWindow(t *testing.T) {
	m := NewManager(DefaultConfig("authcore"))
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	raw, err := b32.DecodeString(secret)
	if err != nil {
		t.Fatal(err)
	}

	// A code derived at step N must be accepted at steps N-1, N and
	// N+1, and rejected two steps away.
	now := time.Unix(1_700_000_010, 0)
	step := now.Unix() / 30
	code, err := hotpCode(raw, step, 6, "SHA1")
	if err != nil {
		t.Fatal(err)
	}

	for _, delta := range []int64{-30, 0, 30} {
		ok, err := m.VerifyCode(secret, code, now.Add(time.Duration(delta)*time.Second))
		if err != nil || !ok {
			t.Fatalf("code not accepted at delta %ds: ok=%v err=%v", delta, ok, err)
		}
	}
	for _, delta := range []int64{-60, 60} {
		ok, err := m.VerifyCode(secret, code, now.Add(time.Duration(delta)*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatalf("code accepted %ds outside the skew window", delta)
		}
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := NewManager(DefaultConfig("authcore"))
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}

	for _, code := range []string{"", "12345", "1234567", "12345a"} {
		ok, err := m.VerifyCode(secret, code, time.Now())
		if err != nil || ok {
			t.Fatalf("malformed code %q: ok=%v err=%v", code, ok, err)
		}
	}

	if _, err := m.VerifyCode("not-base32!", "123456", time.Now()); err == nil {
		t.Fatal("invalid secret accepted")
	}
}

func TestProvisionURI(t *testing.T) {
	m := NewManager(DefaultConfig("authcore"))
	uri := m.ProvisionURI("ABCDEFGH", "a@x.com")

	if !strings.HasPrefix(uri, "otpauth://totp/authcore:a@x.com?") {
		t.Fatalf("unexpected URI prefix: %s", uri)
	}
	for _, want := range []string{"secret=ABCDEFGH", "issuer=authcore", "period=30", "digits=6", "algorithm=SHA1"} {
		if !strings.Contains(uri, want) {
			t.Errorf("URI missing %s: %s", want, uri)
		}
	}
}

func TestGenerateSecretIsBase32(t *testing.T) {
	m := NewManager(DefaultConfig("authcore"))
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := b32.DecodeString(secret)
	if err != nil {
		t.Fatalf("secret is not valid base32: %v", err)
	}
	if len(raw) != secretBytes {
		t.Fatalf("unexpected secret size %d", len(raw))
	}
}
