// Package auth verifies the access tokens issued by the case-management platform.
package auth

import (
	"context"
	"errors"
	"time"

	casebridge_errors "casebridge/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verifier resolves a bearer credential to the user it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (uuid.UUID, error)
}

// AccessClaims carries the user id in user_id, falling back to the standard subject.
type AccessClaims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
	leeway time.Duration
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), leeway: 30 * time.Second}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (uuid.UUID, error) {
	if token == "" || len(v.secret) == 0 {
		return uuid.Nil, casebridge_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.leeway))
	if err != nil {
		return uuid.Nil, casebridge_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, casebridge_errors.ErrUnauthorized
	}
	raw := claims.UserID
	if raw == "" {
		raw = claims.Subject
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, casebridge_errors.ErrUnauthorized
	}
	return userID, nil
}

// Sign issues an HS256 token for userID. Used by the dev tooling and tests.
func (v *JWTVerifier) Sign(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
