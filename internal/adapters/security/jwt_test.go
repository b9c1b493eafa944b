package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
)

func TestJWTVerifierHMACRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier(JWTVerifierConfig{HMACSecret: "dev-secret", Issuer: "viralforge-auth"})
	require.NoError(t, err)

	token, err := v.Issue(domain.Principal{UserID: "brand-1", Role: domain.RoleBrand}, time.Hour, time.Now())
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, domain.Principal{UserID: "brand-1", Role: domain.RoleBrand}, p)
}

func TestJWTVerifierRejects(t *testing.T) {
	v, err := NewJWTVerifier(JWTVerifierConfig{HMACSecret: "dev-secret", Issuer: "viralforge-auth"})
	require.NoError(t, err)
	other, err := NewJWTVerifier(JWTVerifierConfig{HMACSecret: "other-secret", Issuer: "viralforge-auth"})
	require.NoError(t, err)
	wrongIssuer, err := NewJWTVerifier(JWTVerifierConfig{HMACSecret: "dev-secret", Issuer: "someone-else"})
	require.NoError(t, err)

	expired, err := v.Issue(domain.Principal{UserID: "u", Role: domain.RoleBrand}, time.Minute, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	forged, err := other.Issue(domain.Principal{UserID: "u", Role: domain.RoleAdmin}, time.Hour, time.Now())
	require.NoError(t, err)
	misissued, err := wrongIssuer.Issue(domain.Principal{UserID: "u", Role: domain.RoleAdmin}, time.Hour, time.Now())
	require.NoError(t, err)
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, principalClaims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    "viralforge-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("dev-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"expired":      expired,
		"forged":       forged,
		"wrong issuer": misissued,
		"unknown role": badRole,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			require.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestJWTVerifierRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	v, err := NewJWTVerifier(JWTVerifierConfig{PublicKeyPEM: pubPEM})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, principalClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, p.Role)
	require.Equal(t, "ops-1", p.UserID)

	_, err = v.Issue(p, time.Hour, time.Now())
	require.Error(t, err)
}

func TestNewJWTVerifierRequiresKey(t *testing.T) {
	_, err := NewJWTVerifier(JWTVerifierConfig{})
	require.Error(t, err)
	_, err = NewJWTVerifier(JWTVerifierConfig{PublicKeyPEM: "nope"})
	require.Error(t, err)
}
