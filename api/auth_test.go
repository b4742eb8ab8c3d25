package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestLocalAuthRoundTrip(t *testing.T) {
	auth := NewLocalAuth([]byte("unit-test-secret"), "pulseboard")

	token, err := auth.IssueSession("jane@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	userID, err := auth.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != "jane@example.com" {
		t.Fatalf("unexpected user id %q", userID)
	}
}

func TestLocalAuthRejectsExpiredToken(t *testing.T) {
	auth := NewLocalAuth([]byte("unit-test-secret"), "pulseboard")
	auth.sessionTTL = -time.Minute

	token, err := auth.IssueSession("jane@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestLocalAuthRejectsWrongSecret(t *testing.T) {
	issuer := NewLocalAuth([]byte("secret-a"), "pulseboard")
	validator := NewLocalAuth([]byte("secret-b"), "pulseboard")

	token, err := issuer.IssueSession("jane@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := validator.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestLocalAuthRejectsWrongIssuer(t *testing.T) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "jane@example.com",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"iss": "someone-else",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	auth := NewLocalAuth([]byte("unit-test-secret"), "pulseboard")
	if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestAuthHeaderParsing(t *testing.T) {
	auth := NewLocalAuth([]byte("unit-test-secret"), "pulseboard")

	if _, err := auth.UserIDFromAuthHeader(""); !errors.Is(err, errMissingAuthorization) {
		t.Fatalf("expected missing header error, got %v", err)
	}
	for _, h := range []string{"Bearer", "Bearer ", "Basic abc", "token-without-scheme"} {
		if _, err := auth.UserIDFromAuthHeader(h); err == nil {
			t.Fatalf("expected header %q to be rejected", h)
		}
	}
}

func TestIssueSessionRequiresSecretMode(t *testing.T) {
	auth := NewAuth(nil, "aud", "iss")
	if _, err := auth.IssueSession("jane@example.com"); err == nil {
		t.Fatal("JWKS mode must not issue sessions")
	}
}

func TestNewLocalAuthPanicsOnEmptySecret(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty secret")
		}
	}()
	NewLocalAuth(nil, "pulseboard")
}
