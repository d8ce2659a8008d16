package claims

// MergePayload deep-merges partial into base and returns a new payload.
// Neither input is mutated. Merge rules match the wire format's JSON
// semantics:
//
//   - a nil value in partial deletes the key (an explicit clear),
//   - when both sides hold an object for the same key, the objects are
//     merged recursively,
//   - any other value in partial replaces the base value.
//
// Keys a caller wants left untouched are simply not included in partial, so
// the merged result never contains placeholder members that JSON cannot
// represent.
func MergePayload(base, partial JSONObject) JSONObject {
	merged := clonePayload(base)

	for key, value := range partial {
		if value == nil {
			delete(merged, key)
			continue
		}

		baseObject, baseIsObject := merged[key].(map[string]any)
		partialObject, partialIsObject := value.(map[string]any)
		if baseIsObject && partialIsObject {
			merged[key] = MergePayload(baseObject, partialObject)
			continue
		}

		merged[key] = cloneValue(value)
	}

	return merged
}

func clonePayload(payload JSONObject) JSONObject {
	cloned := make(JSONObject, len(payload))
	for key, value := range payload {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return clonePayload(v)
	case []any:
		cloned := make([]any, len(v))
		for i, item := range v {
			cloned[i] = cloneValue(item)
		}
		return cloned
	default:
		return v
	}
}
