package core

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestPaginationTokenRoundTrip(t *testing.T) {
	token := EncodePaginationToken(42, OrderOldestFirst)

	offset, err := DecodePaginationToken(token, OrderOldestFirst)
	if err != nil {
		t.Fatalf("DecodePaginationToken: %v", err)
	}
	if offset != 42 {
		t.Fatalf("offset = %d, want 42", offset)
	}
}

func TestPaginationTokenEmptyMeansStart(t *testing.T) {
	offset, err := DecodePaginationToken("", OrderNewestFirst)
	if err != nil || offset != 0 {
		t.Fatalf("empty token: offset %d, err %v", offset, err)
	}
}

func TestPaginationTokenRejectsWrongOrder(t *testing.T) {
	token := EncodePaginationToken(10, OrderOldestFirst)
	if _, err := DecodePaginationToken(token, OrderNewestFirst); !errors.Is(err, ErrInvalidPaginationToken) {
		t.Fatalf("expected ErrInvalidPaginationToken, got %v", err)
	}
}

func TestPaginationTokenRejectsGarbage(t *testing.T) {
	bad := []string{
		"!!!not-base64!!!",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"o":-1,"s":"ASC"}`)),
	}
	for _, token := range bad {
		if _, err := DecodePaginationToken(token, OrderOldestFirst); !errors.Is(err, ErrInvalidPaginationToken) {
			t.Fatalf("token %q: expected ErrInvalidPaginationToken, got %v", token, err)
		}
	}
}

func TestValidateLimit(t *testing.T) {
	if err := ValidateLimit(1); err != nil {
		t.Fatalf("limit 1: %v", err)
	}
	for _, limit := range []int{0, -5} {
		if err := ValidateLimit(limit); !errors.Is(err, ErrInvalidLimit) {
			t.Fatalf("limit %d: expected ErrInvalidLimit, got %v", limit, err)
		}
	}
}
