package claims

import (
	"reflect"
	"time"
)

// Result is the outcome of a single validator run. Reason is
// validator-defined: a plain string or a structured map such as
// {"message", "expectedValue", "actualValue"}; the validation engine carries
// it through without interpreting it.
type Result struct {
	IsValid bool
	Reason  any
}

// Failure records one failed validator, in the order validators were
// supplied by the caller.
type Failure struct {
	ID     string `json:"id"`
	Reason any    `json:"reason,omitempty"`
}

// Validator is a predicate over the current payload. Two variants exist and
// are dispatched explicitly by the presence of Claim:
//
//   - claim-bound: Claim is set, ShouldRefetch may request the claim's value
//     be refetched before Validate runs;
//   - custom: Claim is nil and only Validate is consulted.
type Validator struct {
	ID string

	// Claim binds the validator to a claim, enabling refetch. Nil for pure
	// custom predicates.
	Claim *Claim

	// ShouldRefetch reports whether the bound claim's value must be fetched
	// again before validating. Ignored when Claim is nil.
	ShouldRefetch func(payload JSONObject, now time.Time) bool

	Validate func(payload JSONObject) Result
}

// HasValue returns a claim-bound validator that passes when the claim's
// stored value deep-equals expected. A refetch is requested when the claim
// is missing or its value is older than maxAge (maxAge <= 0 only refetches
// on absence).
func HasValue(claim *Claim, expected any, maxAge time.Duration) Validator {
	return Validator{
		ID:            claim.Key,
		Claim:         claim,
		ShouldRefetch: refetchWhenStale(claim, maxAge),
		Validate: func(payload JSONObject) Result {
			actual, ok := claim.ValueFromPayload(payload)
			if !ok {
				return Result{Reason: map[string]any{
					"message":       "value does not exist",
					"expectedValue": expected,
				}}
			}
			if !reflect.DeepEqual(actual, expected) {
				return Result{Reason: map[string]any{
					"message":       "wrong value",
					"expectedValue": expected,
					"actualValue":   actual,
				}}
			}
			return Result{IsValid: true}
		},
	}
}

func refetchWhenStale(claim *Claim, maxAge time.Duration) func(JSONObject, time.Time) bool {
	return func(payload JSONObject, now time.Time) bool {
		fetchedAt, ok := claim.FetchedAt(payload)
		if !ok {
			return claim.Fetch != nil
		}
		if maxAge <= 0 {
			return false
		}
		return claim.Fetch != nil && now.Sub(fetchedAt) > maxAge
	}
}

// BooleanClaim is a Claim over a boolean fact with stock true/false
// validators, the shape used for facts like "is email verified".
type BooleanClaim struct {
	Claim
}

// NewBooleanClaim builds a BooleanClaim with the given payload key and
// fetcher.
func NewBooleanClaim(key string, fetch FetchFunc) *BooleanClaim {
	return &BooleanClaim{Claim: Claim{Key: key, Fetch: fetch}}
}

// IsTrue returns a validator that passes when the claim's value is true,
// refetching when absent or older than maxAge.
func (c *BooleanClaim) IsTrue(maxAge time.Duration) Validator {
	return c.hasBoolValue(true, maxAge)
}

// IsFalse returns a validator that passes when the claim's value is false,
// refetching when absent or older than maxAge.
func (c *BooleanClaim) IsFalse(maxAge time.Duration) Validator {
	return c.hasBoolValue(false, maxAge)
}

func (c *BooleanClaim) hasBoolValue(expected bool, maxAge time.Duration) Validator {
	return HasValue(&c.Claim, expected, maxAge)
}
