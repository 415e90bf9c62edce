package service

import (
	"fmt"
	"strconv"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// JWTTokenService implements ports.TokenService using HS256 JWT.
// Tokens are issued by the identity provider; Generate exists for tooling and tests.
type JWTTokenService struct {
	secret []byte
	issuer string
	maxAge time.Duration
}

// NewJWTTokenService creates a new JWT token service. Tokens issued more than
// maxAge ago are refused even when unexpired; zero disables the check.
func NewJWTTokenService(secret string, issuer string, maxAge time.Duration) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		issuer: issuer,
		maxAge: maxAge,
	}
}

// Generate creates a signed JWT for the given actor.
func (s *JWTTokenService) Generate(actor domain.Actor, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(actor.ID, 10),
		"role": string(actor.Role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"iss":  s.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a JWT token, returning the claims.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithIssuedAt(), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("missing subject claim")
	}
	actorID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || actorID <= 0 {
		return nil, fmt.Errorf("invalid actor ID in token: %q", sub)
	}

	roleStr, _ := claims["role"].(string)
	role := domain.Role(roleStr)
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role claim: %q", roleStr)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, fmt.Errorf("missing issued-at claim")
	}
	if s.maxAge > 0 && time.Since(iat.Time) > s.maxAge {
		return nil, fmt.Errorf("token issued %s ago exceeds max age", time.Since(iat.Time).Truncate(time.Second))
	}

	return &ports.TokenClaims{
		Actor:    domain.Actor{ID: actorID, Role: role},
		IssuedAt: iat.Time,
	}, nil
}
