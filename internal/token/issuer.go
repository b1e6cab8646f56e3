// Package token mints and parses the stateless access tokens.
//
// Access tokens are deliberately not revocable: their short lifetime
// bounds exposure, and revocation happens indirectly by refusing the
// next refresh.
package token

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared symmetric key.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Config holds the issuer settings. PrivateKey carries the HS256
// shared key or the raw ed25519 private key depending on Method.
type Config struct {
	TTL        time.Duration
	Method     SigningMethod
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Leeway     time.Duration
}

// Claims is the access-token payload: subject id in the registered
// claims, plus the identity attributes consumers authorize against.
type Claims struct {
	Email       string   `json:"email"`
	Admin       bool     `json:"admin,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies access tokens. It holds no mutable state
// and is safe for concurrent use.
type Issuer struct {
	cfg Config
}

// NewIssuer validates the configuration and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("access token TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway")
	}
	switch cfg.Method {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, errors.New("invalid ed25519 private key")
		}
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("invalid ed25519 public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Issuer{cfg: cfg}, nil
}

// Issue mints a signed token for the subject. Issuance needs no
// storage round trip.
func (i *Issuer) Issue(subjectID, email string, admin bool, permissions []string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:       email,
		Admin:       admin,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}

	tok := jwt.NewWithClaims(i.method(), claims)
	return tok.SignedString(i.signKey())
}

// Parse verifies the signature and registered claims and returns the
// payload. Expired, tampered, or wrongly signed tokens fail.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.cfg.Leeway))
	}
	if i.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.verifyKey(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (i *Issuer) method() jwt.SigningMethod {
	if i.cfg.Method == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (i *Issuer) signKey() interface{} {
	if i.cfg.Method == MethodEd25519 {
		return ed25519.PrivateKey(i.cfg.PrivateKey)
	}
	return i.cfg.PrivateKey
}

func (i *Issuer) verifyKey() interface{} {
	if i.cfg.Method == MethodEd25519 {
		return ed25519.PublicKey(i.cfg.PublicKey)
	}
	return i.cfg.PrivateKey
}
