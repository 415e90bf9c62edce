package service

import (
	"testing"
	"time"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "test-issuer", 15*time.Minute)
	actor := domain.Actor{ID: 42, Role: domain.RoleFinancialReviewer}

	tokenStr, expiresAt, err := svc.Generate(actor, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt, 5*time.Second)
}

func TestJWTTokenService_ExpiredToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "test-issuer", 0)

	tokenStr, _, err := svc.Generate(domain.Actor{ID: 1, Role: domain.RoleCustomer}, -time.Hour)
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.Error(t, err, "expired token should fail validation")
}

func TestJWTTokenService_InvalidSignature(t *testing.T) {
	svc1 := NewJWTTokenService("secret-1", "issuer", 0)
	svc2 := NewJWTTokenService("secret-2", "issuer", 0)

	tokenStr, _, err := svc1.Generate(domain.Actor{ID: 1, Role: domain.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	_, err = svc2.Validate(tokenStr)
	assert.Error(t, err, "token signed with different secret should fail")
}

func TestJWTTokenService_WrongIssuer(t *testing.T) {
	issuer := NewJWTTokenService(testJWTSecret, "someone-else", 0)
	svc := NewJWTTokenService(testJWTSecret, "identity-provider", 0)

	tokenStr, _, err := issuer.Generate(domain.Actor{ID: 1, Role: domain.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.Error(t, err)
}

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return s
}

func TestJWTTokenService_RejectsOldToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "issuer", 15*time.Minute)
	issued := time.Now().Add(-time.Hour)

	tokenStr := signClaims(t, jwt.MapClaims{
		"sub":  "9",
		"role": "customer",
		"iss":  "issuer",
		"iat":  issued.Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	_, err := svc.Validate(tokenStr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max age")
}

func TestJWTTokenService_RejectsBadClaims(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "issuer", 0)
	now := time.Now()

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"unknown role", jwt.MapClaims{"sub": "9", "role": "vendor", "iss": "issuer", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()}},
		{"non-numeric subject", jwt.MapClaims{"sub": "abc", "role": "customer", "iss": "issuer", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()}},
		{"missing subject", jwt.MapClaims{"role": "customer", "iss": "issuer", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()}},
		{"missing expiry", jwt.MapClaims{"sub": "9", "role": "customer", "iss": "issuer", "iat": now.Unix()}},
		{"missing issued-at", jwt.MapClaims{"sub": "9", "role": "customer", "iss": "issuer", "exp": now.Add(time.Hour).Unix()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(signClaims(t, tt.claims))
			assert.Error(t, err)
		})
	}
}

func TestJWTTokenService_InvalidTokenString(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "issuer", 0)

	_, err := svc.Validate("not.a.valid.jwt")
	assert.Error(t, err)
}

func TestJWTTokenService_EmptyToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, "issuer", 0)

	_, err := svc.Validate("")
	assert.Error(t, err)
}
