package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// Refresh tokens are opaque: base64url(handle bytes || secret). The handle
// prefix lets the store address the session record without a lookup table,
// and only a hash of the full token is ever persisted.
const (
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + refreshSecretSize
)

func NewSessionHandle() string {
	return uuid.NewString()
}

func NewAntiCsrfToken() string {
	return uuid.NewString()
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func EncodeRefreshToken(sessionHandle string, secret [refreshSecretSize]byte) (string, error) {
	handle, err := uuid.Parse(sessionHandle)
	if err != nil {
		return "", errors.New("invalid session handle")
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:16], handle[:])
	copy(raw[16:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeRefreshToken(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	if len(raw) != refreshTokenRawSize {
		return "", errors.New("invalid refresh token size")
	}

	var handle uuid.UUID
	copy(handle[:], raw[:16])
	return handle.String(), nil
}

// HashToken returns the base64url SHA-256 of a wire token. Stores persist
// and compare hashes only, never raw token material.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
