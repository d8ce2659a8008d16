package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionkit/sessionkit/claims"
)

func newHSCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		Method:  MethodHS256,
		SignKey: []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func samplePayload() AccessPayload {
	return AccessPayload{
		SessionHandle:    "handle-1",
		UserID:           "user-1",
		RecipeUserID:     "recipe-user-1",
		RefreshTokenHash: "rt-hash",
		AntiCsrfHash:     "csrf-hash",
		IssuedAt:         time.Now(),
		Expiry:           time.Now().Add(time.Hour),
		Claims: claims.JSONObject{
			"role": "admin",
			"st-perm": claims.JSONObject{
				"v": []any{"read"},
				"t": float64(1700000000000),
			},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c := newHSCodec(t)

	raw, err := c.Encode(samplePayload())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.SessionHandle != "handle-1" || decoded.UserID != "user-1" {
		t.Fatalf("unexpected identity: %+v", decoded)
	}
	if decoded.RecipeUserID != "recipe-user-1" {
		t.Fatalf("unexpected recipe user id: %q", decoded.RecipeUserID)
	}
	if decoded.RefreshTokenHash != "rt-hash" || decoded.AntiCsrfHash != "csrf-hash" {
		t.Fatalf("binding hashes lost: %+v", decoded)
	}
	if decoded.Claims["role"] != "admin" {
		t.Fatalf("dynamic payload lost: %+v", decoded.Claims)
	}
	for key := range staticClaimKeys {
		if _, ok := decoded.Claims[key]; ok {
			t.Fatalf("envelope key %q leaked into dynamic payload", key)
		}
	}
}

func TestCodecRecipeUserIDDefaultsToUserID(t *testing.T) {
	c := newHSCodec(t)

	p := samplePayload()
	p.RecipeUserID = ""
	raw, err := c.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.RecipeUserID != "user-1" {
		t.Fatalf("expected recipe user id to default to user id, got %q", decoded.RecipeUserID)
	}
}

func TestCodecRejectsReservedPayloadKeys(t *testing.T) {
	c := newHSCodec(t)

	p := samplePayload()
	p.Claims["uid"] = "spoofed"
	if _, err := c.Encode(p); err == nil {
		t.Fatal("expected reserved key rejection")
	}
}

func TestCodecAllowsSubAndIssInPayload(t *testing.T) {
	c := newHSCodec(t)

	p := samplePayload()
	p.Claims["sub"] = "custom-subject"
	p.Claims["iss"] = "https://auth.example.com"
	raw, err := c.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Claims["sub"] != "custom-subject" || decoded.Claims["iss"] != "https://auth.example.com" {
		t.Fatalf("mirror override keys lost: %+v", decoded.Claims)
	}
}

func TestCodecExpired(t *testing.T) {
	c := newHSCodec(t)

	p := samplePayload()
	p.IssuedAt = time.Now().Add(-2 * time.Hour)
	p.Expiry = time.Now().Add(-time.Hour)
	raw, err := c.Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = c.Decode(raw)
	var verr *VerificationError
	if !errors.As(err, &verr) || verr.Kind != KindExpired {
		t.Fatalf("expected expired verification error, got %v", err)
	}
}

func TestCodecMalformed(t *testing.T) {
	c := newHSCodec(t)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c"} {
		_, err := c.Decode(raw)
		var verr *VerificationError
		if !errors.As(err, &verr) || verr.Kind != KindMalformed {
			t.Fatalf("token %q: expected malformed, got %v", raw, err)
		}
	}
}

func TestCodecWrongKeySignature(t *testing.T) {
	signer := newHSCodec(t)
	verifier, err := NewCodec(Config{
		Method:  MethodHS256,
		SignKey: []byte("ffffffffffffffffffffffffffffffff"),
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	raw, err := signer.Encode(samplePayload())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = verifier.Decode(raw)
	var verr *VerificationError
	if !errors.As(err, &verr) || verr.Kind != KindSignatureInvalid {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestCodecUnsupportedVersion(t *testing.T) {
	c := newHSCodec(t)

	raw, err := c.SignClaims(jwt.MapClaims{
		claimVersion:       2,
		claimSessionHandle: "handle-1",
		claimUserID:        "user-1",
		"exp":              jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("SignClaims: %v", err)
	}

	_, err = c.Decode(raw)
	var verr *VerificationError
	if !errors.As(err, &verr) || verr.Kind != KindUnsupportedVersion {
		t.Fatalf("expected unsupported version, got %v", err)
	}
}

func TestCodecEd25519VerifyKeyRotation(t *testing.T) {
	oldPub, oldPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	newPub, newPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	oldSigner, err := NewCodec(Config{Method: MethodEd25519, SignKey: oldPriv, KeyID: "k1"})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	raw, err := oldSigner.Encode(samplePayload())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	rotated, err := NewCodec(Config{
		Method:  MethodEd25519,
		SignKey: newPriv,
		KeyID:   "k2",
		VerifyKeys: map[string][]byte{
			"k1": oldPub,
			"k2": newPub,
		},
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	if _, err := rotated.Decode(raw); err != nil {
		t.Fatalf("token signed with prior key should verify during rotation: %v", err)
	}

	narrowed, err := NewCodec(Config{
		Method:  MethodEd25519,
		SignKey: newPriv,
		KeyID:   "k2",
		VerifyKeys: map[string][]byte{
			"k2": newPub,
		},
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	_, err = narrowed.Decode(raw)
	var verr *VerificationError
	if !errors.As(err, &verr) || verr.Kind != KindSignatureInvalid {
		t.Fatalf("expected signature error once old kid is dropped, got %v", err)
	}
}

func TestCodecRejectsAlgorithmConfusion(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	edCodec, err := NewCodec(Config{Method: MethodEd25519, SignKey: priv})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	hsCodec := newHSCodec(t)

	raw, err := hsCodec.Encode(samplePayload())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := edCodec.Decode(raw); err == nil {
		t.Fatal("expected hs256 token to fail on ed25519 codec")
	}
}

func TestNewCodecValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing method", Config{SignKey: []byte("k")}},
		{"hs256 without key", Config{Method: MethodHS256}},
		{"ed25519 bad key", Config{Method: MethodEd25519, SignKey: []byte("short")}},
		{"kid outside verify set", Config{
			Method:     MethodHS256,
			SignKey:    []byte("0123456789abcdef0123456789abcdef"),
			KeyID:      "k9",
			VerifyKeys: map[string][]byte{"k1": []byte("x")},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCodec(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}
