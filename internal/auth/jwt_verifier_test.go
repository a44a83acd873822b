package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	casebridge_errors "casebridge/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	user := uuid.New()
	token, err := v.Sign(user, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Verify(context.Background(), token)
	if err != nil || got != user {
		t.Fatalf("Verify = %s, %v", got, err)
	}
}

func TestVerifySubjectFallback(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	user := uuid.New()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}
	if got, err := v.Verify(context.Background(), token); err != nil || got != user {
		t.Fatalf("Verify = %s, %v", got, err)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	user := uuid.New()

	expired, _ := v.Sign(user, -time.Hour)
	otherKey, _ := NewJWTVerifier("different").Sign(user, time.Minute)
	notUUID, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{UserID: "alice"}).SignedString([]byte("s3cret"))

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.jwt",
		"expired":   expired,
		"wrong key": otherKey,
		"bad id":    notUUID,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), token); !errors.Is(err, casebridge_errors.ErrUnauthorized) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
