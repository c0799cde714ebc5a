package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func claimsFor(role string, exp time.Time) Claims {
	return Claims{
		Email: "avery@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, claimsFor("admin", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "avery@example.com" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, claimsFor("dj", time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), claimsFor("dj", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := ParseToken([]byte("secret"), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestParseTokenRequiresSubjectRoleAndExpiry(t *testing.T) {
	secret := []byte("secret")
	cases := map[string]Claims{
		"no subject": {Role: "dj", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}},
		"no role":    {RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}},
		"no expiry":  {Role: "dj", RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			issued, err := IssueToken(secret, claims)
			if err != nil {
				t.Fatalf("IssueToken() error = %v", err)
			}
			if _, err := ParseToken(secret, issued); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := BearerToken("Bearer abc"); !ok || token != "abc" {
		t.Fatalf("unexpected %q %v", token, ok)
	}
	if token, ok := BearerToken("bearer  abc "); !ok || token != "abc" {
		t.Fatalf("unexpected %q %v", token, ok)
	}
	for _, header := range []string{"", "Bearer ", "Basic abc", "abc"} {
		if _, ok := BearerToken(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}
