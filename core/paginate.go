package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

var (
	// ErrInvalidPaginationToken reports a cursor that did not come from a
	// previous page of the same ordering.
	ErrInvalidPaginationToken = errors.New("invalid pagination token")

	// ErrInvalidLimit reports a non-positive page size.
	ErrInvalidLimit = errors.New("limit must be a positive integer")
)

const (
	OrderOldestFirst = "ASC"
	OrderNewestFirst = "DESC"
)

// paginationCursor is the decoded form of a pagination token: an opaque
// base64url JSON blob carrying the resume offset and the ordering it was
// minted for, so a cursor cannot be replayed against the opposite order.
type paginationCursor struct {
	Offset int64  `json:"o"`
	Order  string `json:"s"`
}

func EncodePaginationToken(offset int64, order string) string {
	raw, _ := json.Marshal(paginationCursor{Offset: offset, Order: order})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func DecodePaginationToken(token, wantOrder string) (int64, error) {
	if token == "" {
		return 0, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, ErrInvalidPaginationToken
	}

	var cursor paginationCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return 0, ErrInvalidPaginationToken
	}
	if cursor.Offset < 0 || cursor.Order != wantOrder {
		return 0, ErrInvalidPaginationToken
	}
	return cursor.Offset, nil
}

// ValidateLimit checks a requested page size before any cursor work.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
