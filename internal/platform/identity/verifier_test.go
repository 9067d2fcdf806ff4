package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "controller-signing-secret"

func signToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return signed
}

func TestVerifyControllerAcceptsMatchingSubject(t *testing.T) {
	verifier, err := NewVerifier(testSecret, nil)
	if err != nil {
		t.Fatalf("build verifier failed: %v", err)
	}
	token := signToken(t, "controller-1", time.Now().Add(time.Hour))

	if err := verifier.VerifyController(context.Background(), token, "controller-1"); err != nil {
		t.Fatalf("expected valid token to verify, got %v", err)
	}
	// Second call is served from cache.
	if err := verifier.VerifyController(context.Background(), token, "controller-1"); err != nil {
		t.Fatalf("expected cached token to verify, got %v", err)
	}
	if err := verifier.VerifyController(context.Background(), token, "someone-else"); !errors.Is(err, domainerrors.ErrIdentityRejected) {
		t.Fatalf("expected subject mismatch rejection, got %v", err)
	}
}

func TestVerifyControllerRejectsExpiredToken(t *testing.T) {
	verifier, err := NewVerifier(testSecret, nil)
	if err != nil {
		t.Fatalf("build verifier failed: %v", err)
	}
	token := signToken(t, "controller-1", time.Now().Add(-time.Hour))

	if err := verifier.VerifyController(context.Background(), token, "controller-1"); !errors.Is(err, domainerrors.ErrIdentityRejected) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}

func TestVerifyControllerRejectsExpiredCachedToken(t *testing.T) {
	verifier, err := NewVerifier(testSecret, nil)
	if err != nil {
		t.Fatalf("build verifier failed: %v", err)
	}
	expiresAt := time.Now().Add(time.Hour)
	token := signToken(t, "controller-1", expiresAt)

	// Prime the cache while the token is still live.
	if err := verifier.VerifyController(context.Background(), token, "controller-1"); err != nil {
		t.Fatalf("expected live token to verify, got %v", err)
	}

	verifier.now = func() time.Time { return expiresAt.Add(time.Minute) }
	if err := verifier.VerifyController(context.Background(), token, "controller-1"); !errors.Is(err, domainerrors.ErrIdentityRejected) {
		t.Fatalf("expected cached token to expire, got %v", err)
	}
}
