package sessionkit

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sessionkit/sessionkit/claims"
)

func TestUnauthorisedErrorMatchesSentinel(t *testing.T) {
	err := newUnauthorisedError("session revoked")
	if !errors.Is(err, ErrUnauthorised) {
		t.Fatal("UnauthorisedError should match ErrUnauthorised")
	}
	if !err.ClearTokens {
		t.Fatal("newUnauthorisedError must request token clearing")
	}
	if !strings.Contains(err.Error(), "session revoked") {
		t.Fatalf("message: %q", err.Error())
	}

	bare := &UnauthorisedError{}
	if bare.Error() != ErrUnauthorised.Error() {
		t.Fatalf("bare message: %q", bare.Error())
	}

	wrapped := fmt.Errorf("verify: %w", err)
	var target *UnauthorisedError
	if !errors.As(wrapped, &target) || !target.ClearTokens {
		t.Fatal("errors.As through wrapping lost the typed error")
	}
}

func TestTokenTheftDetectedErrorMatchesSentinel(t *testing.T) {
	err := &TokenTheftDetectedError{SessionHandle: "h1", UserID: "u1"}
	if !errors.Is(err, ErrTokenTheftDetected) {
		t.Fatal("TokenTheftDetectedError should match ErrTokenTheftDetected")
	}
	if !strings.Contains(err.Error(), "h1") {
		t.Fatalf("message: %q", err.Error())
	}
}

func TestInvalidClaimsErrorListsFailureIDs(t *testing.T) {
	err := &InvalidClaimsError{Failures: []claims.Failure{
		{ID: "st-ev"},
		{ID: "st-mfa", Reason: "factor missing"},
	}}
	if !errors.Is(err, ErrInvalidClaims) {
		t.Fatal("InvalidClaimsError should match ErrInvalidClaims")
	}
	msg := err.Error()
	if !strings.Contains(msg, "st-ev") || !strings.Contains(msg, "st-mfa") {
		t.Fatalf("message: %q", msg)
	}

	empty := &InvalidClaimsError{}
	if empty.Error() != ErrInvalidClaims.Error() {
		t.Fatalf("empty message: %q", empty.Error())
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrUnauthorised,
		ErrTryRefreshToken,
		ErrTokenTheftDetected,
		ErrInvalidClaims,
		ErrAntiCsrfCheckFailed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Fatalf("sentinel %v matches %v", a, b)
			}
		}
	}
}
