// Package twofactor implements RFC 6238 time-based one-time passwords.
package twofactor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config tunes code derivation. The zero value is not usable; use
// DefaultConfig and override the issuer.
type Config struct {
	Issuer    string
	Digits    int
	Period    int // seconds
	Skew      int // accepted steps on each side of now
	Algorithm string
}

// DefaultConfig matches what authenticator apps expect: SHA1, 6
// digits, 30-second period, one step of clock-skew tolerance.
func DefaultConfig(issuer string) Config {
	return Config{
		Issuer:    issuer,
		Digits:    6,
		Period:    30,
		Skew:      1,
		Algorithm: "SHA1",
	}
}

// Manager derives and verifies TOTP codes for base32-encoded secrets.
type Manager struct {
	cfg Config
}

// NewManager returns a Manager for the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	return &Manager{cfg: cfg}
}

// GenerateSecret returns a fresh 160-bit shared secret in base32.
func (m *Manager) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI encoded into enrollment QR
// codes.
func (m *Manager) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(m.cfg.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", m.cfg.Issuer)
	v.Set("period", strconv.Itoa(m.cfg.Period))
	v.Set("digits", strconv.Itoa(m.cfg.Digits))
	v.Set("algorithm", strings.ToUpper(m.cfg.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// GenerateCode derives the code for the time step containing now.
// Counterpart to VerifyCode for enrollment previews and tests.
func (m *Manager) GenerateCode(secretBase32 string, now time.Time) (string, error) {
	secret, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
	if err != nil || len(secret) == 0 {
		return "", errors.New("invalid totp secret")
	}
	return hotpCode(secret, now.Unix()/int64(m.cfg.Period), m.cfg.Digits, m.cfg.Algorithm)
}

// VerifyCode checks a submitted code against the secret at the current
// time step and the configured skew window on either side.
func (m *Manager) VerifyCode(secretBase32, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.cfg.Digits || !allDigits(trimmed) {
		return false, nil
	}

	secret, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
	if err != nil || len(secret) == 0 {
		return false, errors.New("invalid totp secret")
	}

	baseStep := now.Unix() / int64(m.cfg.Period)
	for offset := -m.cfg.Skew; offset <= m.cfg.Skew; offset++ {
		step := baseStep + int64(offset)
		if step < 0 {
			continue
		}
		derived, err := hotpCode(secret, step, m.cfg.Digits, m.cfg.Algorithm)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(derived), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
