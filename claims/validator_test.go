package claims

import (
	"context"
	"testing"
	"time"
)

func TestHasValueValidator(t *testing.T) {
	claim := &Claim{Key: "sk-role"}
	validator := HasValue(claim, "admin", 0)

	payload := claim.AddToPayload(JSONObject{}, "admin", time.Now())
	if res := validator.Validate(payload); !res.IsValid {
		t.Fatalf("expected pass, got reason %v", res.Reason)
	}

	payload = claim.AddToPayload(JSONObject{}, "member", time.Now())
	res := validator.Validate(payload)
	if res.IsValid {
		t.Fatal("expected failure for wrong value")
	}
	reason, ok := res.Reason.(map[string]any)
	if !ok || reason["expectedValue"] != "admin" || reason["actualValue"] != "member" {
		t.Fatalf("unexpected reason shape: %#v", res.Reason)
	}

	if res := validator.Validate(JSONObject{}); res.IsValid {
		t.Fatal("expected failure for missing value")
	}
}

func TestBooleanClaimRefetchOnStaleness(t *testing.T) {
	verified := NewBooleanClaim("sk-email-verified", func(ctx context.Context, userID, recipeUserID string) (any, bool, error) {
		return true, true, nil
	})
	validator := verified.IsTrue(10 * time.Minute)

	now := time.Now()

	if !validator.ShouldRefetch(JSONObject{}, now) {
		t.Fatal("missing claim must trigger refetch")
	}

	fresh := verified.AddToPayload(JSONObject{}, true, now.Add(-time.Minute))
	if validator.ShouldRefetch(fresh, now) {
		t.Fatal("fresh claim must not trigger refetch")
	}

	stale := verified.AddToPayload(JSONObject{}, true, now.Add(-time.Hour))
	if !validator.ShouldRefetch(stale, now) {
		t.Fatal("stale claim must trigger refetch")
	}
}

func TestBooleanClaimIsFalse(t *testing.T) {
	blocked := NewBooleanClaim("sk-blocked", nil)
	validator := blocked.IsFalse(0)

	payload := blocked.AddToPayload(JSONObject{}, false, time.Now())
	if res := validator.Validate(payload); !res.IsValid {
		t.Fatalf("expected pass, got %v", res.Reason)
	}

	payload = blocked.AddToPayload(JSONObject{}, true, time.Now())
	if res := validator.Validate(payload); res.IsValid {
		t.Fatal("expected failure when value is true")
	}
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	reg := NewRegistry()

	first := &Claim{Key: "sk-a"}
	second := &Claim{Key: "sk-b"}

	if err := reg.Register(first, HasValue(first, 1, 0)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := reg.Register(second, HasValue(second, 2, 0)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := reg.Register(&Claim{Key: "sk-a"}); err == nil {
		t.Fatal("expected duplicate key rejection")
	}

	all := reg.Claims()
	if len(all) != 2 || all[0].Key != "sk-a" || all[1].Key != "sk-b" {
		t.Fatalf("unexpected claim order: %#v", all)
	}

	defaults := reg.DefaultValidators()
	if len(defaults) != 2 || defaults[0].ID != "sk-a" || defaults[1].ID != "sk-b" {
		t.Fatalf("unexpected validator order: %#v", defaults)
	}

	if _, ok := reg.ByKey("sk-b"); !ok {
		t.Fatal("ByKey lookup failed")
	}
}
