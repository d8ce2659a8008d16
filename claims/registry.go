package claims

import (
	"errors"
	"fmt"
)

// ErrDuplicateClaimKey is returned when two claims register the same key.
var ErrDuplicateClaimKey = errors.New("duplicate claim key")

// Registry aggregates the claims known at startup. It is constructed once
// during wiring, passed by reference into the session engine, and treated as
// immutable afterwards; there is no runtime registration side-channel.
type Registry struct {
	claims     []*Claim
	byKey      map[string]*Claim
	validators []Validator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKey: map[string]*Claim{}}
}

// Register adds a claim and its default validators. Default validators run
// on every protected request unless a request-level override replaces the
// whole list. Claims are built and validated in registration order.
func (r *Registry) Register(claim *Claim, defaults ...Validator) error {
	if claim == nil || claim.Key == "" {
		return errors.New("claim key must not be empty")
	}
	if _, exists := r.byKey[claim.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateClaimKey, claim.Key)
	}

	r.claims = append(r.claims, claim)
	r.byKey[claim.Key] = claim
	r.validators = append(r.validators, defaults...)
	return nil
}

// Claims returns the registered claims in registration order.
func (r *Registry) Claims() []*Claim {
	if r == nil {
		return nil
	}
	return r.claims
}

// ByKey looks up a registered claim by payload key.
func (r *Registry) ByKey(key string) (*Claim, bool) {
	if r == nil {
		return nil, false
	}
	claim, ok := r.byKey[key]
	return claim, ok
}

// DefaultValidators returns a copy of the aggregated default validator list
// in registration order.
func (r *Registry) DefaultValidators() []Validator {
	if r == nil || len(r.validators) == 0 {
		return nil
	}
	out := make([]Validator, len(r.validators))
	copy(out, r.validators)
	return out
}
