package security

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

type JWTVerifierConfig struct {
	// HMACSecret enables HS256 tokens. Either it or PublicKeyPEM is required.
	HMACSecret string
	// PublicKeyPEM enables RS256 tokens issued by the authentication service.
	PublicKeyPEM string
	Issuer       string
	Audience     string
	Leeway       time.Duration
}

// JWTVerifier authenticates bearer tokens and maps their claims to a
// principal. The subject is the user id; the role claim carries the
// marketplace role.
type JWTVerifier struct {
	method   jwt.SigningMethod
	key      any
	signKey  any
	options  []jwt.ParserOption
	issuer   string
	audience string
}

type principalClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewJWTVerifier(cfg JWTVerifierConfig) (*JWTVerifier, error) {
	v := &JWTVerifier{issuer: cfg.Issuer, audience: cfg.Audience}
	switch {
	case cfg.PublicKeyPEM != "":
		pub, err := parseRSAPublic(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		v.method = jwt.SigningMethodRS256
		v.key = pub
	case cfg.HMACSecret != "":
		v.method = jwt.SigningMethodHS256
		v.key = []byte(cfg.HMACSecret)
		v.signKey = []byte(cfg.HMACSecret)
	default:
		return nil, errors.New("jwt verifier requires an hmac secret or public key")
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	v.options = []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		v.options = append(v.options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		v.options = append(v.options, jwt.WithAudience(cfg.Audience))
	}
	return v, nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(token, &principalClaims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, v.options...)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*principalClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return domain.Principal{}, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}
	role, ok := domain.NormalizeRole(claims.Role)
	if !ok {
		return domain.Principal{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}
	return domain.Principal{UserID: claims.Subject, Role: role}, nil
}

// Issue signs a token for principal. Only HS256 verifiers can issue; it backs
// local tooling and tests.
func (v *JWTVerifier) Issue(principal domain.Principal, ttl time.Duration, now time.Time) (string, error) {
	if v.signKey == nil {
		return "", errors.New("verifier cannot issue tokens")
	}
	claims := principalClaims{
		Role: string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(v.method, claims).SignedString(v.signKey)
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
