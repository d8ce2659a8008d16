package rediscore

import (
	"encoding/json"
	"errors"

	"github.com/sessionkit/sessionkit/claims"
)

const recordSchemaVersion = 1

// record is the durable session blob. Payload and Data are stored as
// pre-encoded JSON strings so the rotation script can rewrite the record
// with cjson without touching nested values (and without the empty
// object/array ambiguity of re-encoding them in Lua).
type record struct {
	Schema       int    `json:"v"`
	Handle       string `json:"h"`
	UserID       string `json:"u"`
	RecipeUserID string `json:"ru"`

	// RefreshHash is the hash of the only spendable refresh token.
	// PrevRefreshHash remembers the hash it replaced: a token matching it
	// identifies a live session whose credential was already rotated, the
	// reuse signal.
	RefreshHash     string `json:"rh"`
	PrevRefreshHash string `json:"ph"`
	Generation      int64  `json:"g"`

	AntiCsrf string `json:"ac"`

	Payload string `json:"p"`
	Data    string `json:"d"`

	CreatedAt int64 `json:"ca"`
	ExpiresAt int64 `json:"ea"`
}

func encodeRecord(r *record) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(data []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Schema != recordSchemaVersion || r.Handle == "" || r.UserID == "" {
		return nil, errors.New("invalid session record")
	}
	return &r, nil
}

func encodeObject(obj claims.JSONObject) (string, error) {
	if obj == nil {
		obj = claims.JSONObject{}
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeObject(raw string) (claims.JSONObject, error) {
	if raw == "" {
		return claims.JSONObject{}, nil
	}
	var obj claims.JSONObject
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = claims.JSONObject{}
	}
	return obj, nil
}
