package mirror

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionkit/sessionkit/claims"
	"github.com/sessionkit/sessionkit/token"
)

var testSignKey = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(token.Config{
		Method:  token.MethodHS256,
		SignKey: testSignKey,
	})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func parseMirror(t *testing.T, raw string) jwt.MapClaims {
	t.Helper()
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return testSignKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("parse mirror: %v", err)
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("unexpected claims type %T", tok.Claims)
	}
	return mc
}

func TestApplyAttachesMirrorAndMarker(t *testing.T) {
	b, err := New(Config{Enable: true, Issuer: "https://api.example.com"}, newTestCodec(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Now()
	expiry := now.Add(time.Hour)
	payload := claims.JSONObject{"role": "admin"}

	out, err := b.Apply(payload, "user-1", expiry, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if out[MarkerKey] != "jwt" {
		t.Fatalf("marker not set: %+v", out)
	}
	raw, ok := out["jwt"].(string)
	if !ok {
		t.Fatalf("mirror property missing: %+v", out)
	}

	mc := parseMirror(t, raw)
	if mc["sub"] != "user-1" {
		t.Fatalf("sub = %v", mc["sub"])
	}
	if mc["iss"] != "https://api.example.com" {
		t.Fatalf("iss = %v", mc["iss"])
	}
	if mc["role"] != "admin" {
		t.Fatalf("payload claim lost: %v", mc["role"])
	}

	wantExp := expiry.Add(defaultExpiryOffset).Unix()
	gotExp := int64(mc["exp"].(float64))
	if gotExp < wantExp-5 || gotExp > wantExp+5 {
		t.Fatalf("exp = %d, want about %d", gotExp, wantExp)
	}

	if _, ok := payload[MarkerKey]; ok {
		t.Fatal("input payload was mutated")
	}
}

func TestApplySubAndIssOverrides(t *testing.T) {
	b, err := New(Config{Enable: true, Issuer: "https://api.example.com"}, newTestCodec(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := claims.JSONObject{
		"sub": "custom-subject",
		"iss": "https://other.example.com",
	}
	out, err := b.Apply(payload, "user-1", time.Now().Add(time.Hour), time.Now())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	mc := parseMirror(t, out["jwt"].(string))
	if mc["sub"] != "custom-subject" {
		t.Fatalf("sub override lost: %v", mc["sub"])
	}
	if mc["iss"] != "https://other.example.com" {
		t.Fatalf("iss override lost: %v", mc["iss"])
	}
}

func TestApplyRenamedPropertyRemovesStaleMirror(t *testing.T) {
	old, err := New(Config{Enable: true}, newTestCodec(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	payload, err := old.Apply(claims.JSONObject{}, "user-1", now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	renamed, err := New(Config{Enable: true, PropertyName: "accessJWT"}, newTestCodec(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := renamed.Apply(payload, "user-1", now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := out["jwt"]; ok {
		t.Fatal("stale mirror under old property survived rename")
	}
	if _, ok := out["accessJWT"].(string); !ok {
		t.Fatalf("renamed mirror missing: %+v", out)
	}
	if out[MarkerKey] != "accessJWT" {
		t.Fatalf("marker = %v", out[MarkerKey])
	}
}

func TestApplyDisabledStripsMirror(t *testing.T) {
	enabled, err := New(Config{Enable: true}, newTestCodec(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	payload, err := enabled.Apply(claims.JSONObject{"role": "admin"}, "user-1", now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	disabled, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := disabled.Apply(payload, "user-1", now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := out["jwt"]; ok {
		t.Fatal("mirror survived disable")
	}
	if _, ok := out[MarkerKey]; ok {
		t.Fatal("marker survived disable")
	}
	if out["role"] != "admin" {
		t.Fatalf("ordinary payload key lost: %+v", out)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	codec := newTestCodec(t)
	cases := []struct {
		name  string
		cfg   Config
		codec *token.Codec
	}{
		{"reserved property", Config{PropertyName: "uid"}, codec},
		{"marker property", Config{PropertyName: MarkerKey}, codec},
		{"negative offset", Config{ExpiryOffset: -time.Second}, codec},
		{"enabled without codec", Config{Enable: true}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg, tc.codec); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}
