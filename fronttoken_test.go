package sessionkit

import (
	"testing"
	"time"

	"github.com/sessionkit/sessionkit/claims"
)

func TestFrontTokenRoundTrip(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	payload := claims.JSONObject{"role": "admin", "count": float64(3)}

	token := buildFrontToken("user-1", expiry, payload)
	if token == "" {
		t.Fatal("empty front token")
	}

	userID, gotExpiry, gotPayload, err := ParseFrontToken(token)
	if err != nil {
		t.Fatalf("ParseFrontToken: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("uid = %q", userID)
	}
	if !gotExpiry.Equal(expiry) {
		t.Fatalf("expiry = %v, want %v", gotExpiry, expiry)
	}
	if gotPayload["role"] != "admin" || gotPayload["count"] != float64(3) {
		t.Fatalf("payload = %v", gotPayload)
	}
}

func TestFrontTokenNilPayload(t *testing.T) {
	token := buildFrontToken("user-1", time.Now(), nil)
	_, _, payload, err := ParseFrontToken(token)
	if err != nil {
		t.Fatalf("ParseFrontToken: %v", err)
	}
	if payload == nil {
		t.Fatal("payload should decode to an empty object, not nil")
	}
}

func TestParseFrontTokenRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-base64!!!", "bm90IGpzb24"} {
		if _, _, _, err := ParseFrontToken(input); err == nil {
			t.Fatalf("ParseFrontToken(%q) accepted garbage", input)
		}
	}
}
