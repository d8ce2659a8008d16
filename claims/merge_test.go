package claims

import (
	"reflect"
	"testing"
)

func TestMergePayloadReplacesAndDeletes(t *testing.T) {
	base := JSONObject{
		"role":  "member",
		"count": 1,
		"gone":  "soon",
	}

	merged := MergePayload(base, JSONObject{
		"role":  "admin",
		"gone":  nil,
		"fresh": true,
	})

	want := JSONObject{
		"role":  "admin",
		"count": 1,
		"fresh": true,
	}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("unexpected merge result: %#v", merged)
	}
}

func TestMergePayloadRecursesIntoObjects(t *testing.T) {
	base := JSONObject{
		"meta": map[string]any{
			"a": 1,
			"b": 2,
		},
	}

	merged := MergePayload(base, JSONObject{
		"meta": map[string]any{
			"b": 3,
			"a": nil,
		},
	})

	want := JSONObject{
		"meta": map[string]any{"b": 3},
	}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("unexpected nested merge: %#v", merged)
	}
}

func TestMergePayloadEmptyPartialRoundTrips(t *testing.T) {
	base := JSONObject{
		"role": "admin",
		"meta": map[string]any{"a": 1},
	}

	merged := MergePayload(base, JSONObject{})
	if !reflect.DeepEqual(merged, base) {
		t.Fatalf("merge with empty partial changed payload: %#v", merged)
	}
}

func TestMergePayloadIdempotentWithSelf(t *testing.T) {
	base := JSONObject{
		"role": "admin",
		"meta": map[string]any{"a": 1},
	}

	once := MergePayload(JSONObject{}, base)
	twice := MergePayload(once, base)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("self-merge not idempotent: %#v vs %#v", once, twice)
	}
}

func TestMergePayloadDoesNotMutateInputs(t *testing.T) {
	base := JSONObject{
		"meta": map[string]any{"a": 1},
	}
	partial := JSONObject{
		"meta": map[string]any{"b": 2},
	}

	merged := MergePayload(base, partial)

	if _, ok := base["meta"].(map[string]any)["b"]; ok {
		t.Fatal("base payload was mutated by merge")
	}
	merged["meta"].(map[string]any)["a"] = 99
	if base["meta"].(map[string]any)["a"] != 1 {
		t.Fatal("merged payload shares structure with base")
	}
}
