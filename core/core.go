// Package core defines the contract between the session engine and its
// backing core: the component that owns durable session records, refresh
// rotation, and the user index. Two implementations ship with the module,
// an HTTP client for a remote core and a Redis-backed in-process core.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/sessionkit/sessionkit/claims"
)

// ErrSessionNotFound is returned by record-level reads and updates when no
// session exists for the given handle.
var ErrSessionNotFound = errors.New("session does not exist")

// RefreshStatus describes the outcome of a refresh attempt.
type RefreshStatus int

const (
	// RefreshSuccess means the presented token was current and has been
	// rotated. The result carries the replacement credentials.
	RefreshSuccess RefreshStatus = iota

	// RefreshStaleGeneration means the presented token belonged to an
	// earlier rotation generation of a live session. This is the token
	// theft signal: someone else already spent this token.
	RefreshStaleGeneration

	// RefreshNotFound means no live session matches the token.
	RefreshNotFound
)

type CreateSessionRequest struct {
	UserID       string
	RecipeUserID string

	// AccessTokenPayload seeds the dynamic claim payload. The engine has
	// already merged registry claims and the JWT mirror into it.
	AccessTokenPayload claims.JSONObject

	// SessionData is the server-only data blob, never present in tokens.
	SessionData claims.JSONObject

	EnableAntiCsrf bool
}

type CreateSessionResult struct {
	SessionHandle      string
	RefreshToken       string
	AntiCsrfToken      string
	AccessTokenExpiry  time.Time
	RefreshTokenExpiry time.Time
}

type RefreshSessionResult struct {
	Status RefreshStatus

	SessionHandle string
	UserID        string
	RecipeUserID  string

	// Populated on RefreshSuccess only.
	RefreshToken       string
	AntiCsrfToken      string
	AccessTokenPayload claims.JSONObject
	AccessTokenExpiry  time.Time
	RefreshTokenExpiry time.Time
}

// SessionInformation is the durable view of a session record.
type SessionInformation struct {
	SessionHandle         string
	UserID                string
	RecipeUserID          string
	SessionDataInDatabase claims.JSONObject
	AccessTokenPayload    claims.JSONObject
	Expiry                time.Time
	TimeCreated           time.Time
}

type User struct {
	ID         string
	TimeJoined time.Time
}

type UserPage struct {
	Users []User

	// NextPaginationToken resumes iteration; empty when the page is final.
	NextPaginationToken string
}

// Client is the operation table the session engine drives. Boolean results
// report whether a matching session existed; they are not errors.
type Client interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error)

	// RefreshSession atomically validates and rotates a refresh token.
	// Exactly one concurrent caller presenting the same current token
	// observes RefreshSuccess.
	RefreshSession(ctx context.Context, refreshToken string, enableAntiCsrf bool) (*RefreshSessionResult, error)

	GetSessionInformation(ctx context.Context, sessionHandle string) (*SessionInformation, error)

	UpdateSessionData(ctx context.Context, sessionHandle string, data claims.JSONObject) (bool, error)
	UpdateSessionPayload(ctx context.Context, sessionHandle string, payload claims.JSONObject) (bool, error)

	RevokeSession(ctx context.Context, sessionHandle string) (bool, error)
	RevokeAllSessionsForUser(ctx context.Context, userID string) ([]string, error)
	GetAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error)

	GetUsersOldestFirst(ctx context.Context, limit int, paginationToken string) (*UserPage, error)
	GetUsersNewestFirst(ctx context.Context, limit int, paginationToken string) (*UserPage, error)
}
