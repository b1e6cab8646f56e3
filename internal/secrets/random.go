package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const opaqueSecretBytes = 32

// NewOpaqueSecret returns a fresh 256-bit random secret encoded as
// unpadded base64url. The raw value is handed to the client exactly
// once; only its SHA-256 digest is ever stored.
func NewOpaqueSecret() (string, error) {
	raw := make([]byte, opaqueSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashOpaqueSecret digests a raw opaque secret for storage and lookup.
func HashOpaqueSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// NewNumericCode returns a uniformly random numeric code of the given
// length, used for backup codes.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// HashBackupCode digests a backup code for storage. Binding the digest
// to the account id keeps identical codes from colliding across
// accounts. Backup codes are matched by exact digest, so the hash must
// be deterministic; their single-use consumption, not hash cost, is
// the security control.
func HashBackupCode(accountID, code string) string {
	sum := sha256.Sum256([]byte(accountID + ":" + strings.TrimSpace(code)))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
