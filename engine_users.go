package sessionkit

import (
	"context"

	"github.com/sessionkit/sessionkit/core"
)

// GetUsersOldestFirst pages through known users in first-seen order. The
// returned cursor resumes the walk; it is only valid for the same
// ordering.
func (e *Engine) GetUsersOldestFirst(ctx context.Context, limit int, paginationToken string) (*core.UserPage, error) {
	return e.core.GetUsersOldestFirst(ctx, limit, paginationToken)
}

// GetUsersNewestFirst pages through known users newest first.
func (e *Engine) GetUsersNewestFirst(ctx context.Context, limit int, paginationToken string) (*core.UserPage, error) {
	return e.core.GetUsersNewestFirst(ctx, limit, paginationToken)
}
