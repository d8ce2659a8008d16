package claims

import (
	"context"
	"time"
)

// JSONObject is the dynamic access-token payload: string keys mapping to
// JSON-serializable values. All payload operations treat it as a value type;
// functions in this package never mutate their inputs.
type JSONObject = map[string]any

// FetchFunc retrieves the current value of a claim for a user. Returning
// found=false means "do not add or update this claim", which is distinct
// from returning a nil value (an explicit clear).
type FetchFunc func(ctx context.Context, userID, recipeUserID string) (value any, found bool, err error)

// Claim is a named, independently fetchable fact attached to a session's
// payload. The stored value shape under Key is {"v": <value>, "t": <fetch
// time, unix ms>} so validators can reason about staleness from the fetch
// timestamp instead of wall-clock heuristics.
type Claim struct {
	// Key is a stable, namespaced payload key, e.g. "sk-email-verified".
	Key string

	// Fetch produces the claim's current value. It may be nil for claims
	// whose values are only ever set explicitly.
	Fetch FetchFunc
}

// Build fetches the claim's value and returns the partial payload to merge:
// {Key: {v, t}} when the fetch yields a value, an empty partial when the
// fetch reports the claim as absent. A fetch error aborts the caller's whole
// pass; claims must not silently validate as present on a fetch failure.
func (c *Claim) Build(ctx context.Context, userID, recipeUserID string, now time.Time) (JSONObject, error) {
	if c.Fetch == nil {
		return JSONObject{}, nil
	}

	value, found, err := c.Fetch(ctx, userID, recipeUserID)
	if err != nil {
		return nil, err
	}
	if !found {
		return JSONObject{}, nil
	}

	return c.AddToPayload(JSONObject{}, value, now), nil
}

// AddToPayload returns a copy of payload with this claim set to value,
// stamped with now as the fetch time.
func (c *Claim) AddToPayload(payload JSONObject, value any, now time.Time) JSONObject {
	return MergePayload(payload, JSONObject{
		c.Key: map[string]any{
			"v": value,
			"t": now.UnixMilli(),
		},
	})
}

// RemovalPartial returns the partial payload that clears this claim when
// merged: the key is written as nil, which MergePayload treats as an
// explicit delete.
func (c *Claim) RemovalPartial() JSONObject {
	return JSONObject{c.Key: nil}
}

// ValueFromPayload extracts the claim's stored value. The second return is
// false when the claim is not present in the payload.
func (c *Claim) ValueFromPayload(payload JSONObject) (any, bool) {
	entry, ok := payload[c.Key].(map[string]any)
	if !ok {
		return nil, false
	}
	value, ok := entry["v"]
	return value, ok
}

// FetchedAt extracts the time the claim's value was last fetched. The second
// return is false when the claim is not present or carries no timestamp.
func (c *Claim) FetchedAt(payload JSONObject) (time.Time, bool) {
	entry, ok := payload[c.Key].(map[string]any)
	if !ok {
		return time.Time{}, false
	}

	switch t := entry["t"].(type) {
	case int64:
		return time.UnixMilli(t), true
	case float64:
		return time.UnixMilli(int64(t)), true
	default:
		return time.Time{}, false
	}
}
