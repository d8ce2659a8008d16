package sessionkit

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sessionkit/sessionkit/claims"
)

// FrontTokenRemove is the front-token header value that instructs clients
// to drop their cached copy.
const FrontTokenRemove = "remove"

// frontTokenBody is deliberately unsigned: it exists so browser clients
// can read identity, expiry, and payload without shipping a JWT verifier.
// Servers must never trust it.
type frontTokenBody struct {
	UserID            string            `json:"uid"`
	AccessTokenExpiry int64             `json:"ate"`
	Payload           claims.JSONObject `json:"up"`
}

func buildFrontToken(userID string, accessTokenExpiry time.Time, payload claims.JSONObject) string {
	if payload == nil {
		payload = claims.JSONObject{}
	}
	raw, err := json.Marshal(frontTokenBody{
		UserID:            userID,
		AccessTokenExpiry: accessTokenExpiry.UnixMilli(),
		Payload:           payload,
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// ParseFrontToken decodes a front token. Intended for tests and client
// tooling; callers must treat the result as unverified.
func ParseFrontToken(token string) (userID string, accessTokenExpiry time.Time, payload claims.JSONObject, err error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	var body frontTokenBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", time.Time{}, nil, err
	}
	if body.Payload == nil {
		body.Payload = claims.JSONObject{}
	}
	return body.UserID, time.UnixMilli(body.AccessTokenExpiry), body.Payload, nil
}
