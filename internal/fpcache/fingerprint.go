package fpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Fingerprint canonicalizes tool and args (sorted keys, recursively) and
// returns a stable SHA-256 hex digest, following the
// canonicalize-then-hash pattern used elsewhere in the ecosystem for
// request-shape fingerprinting.
func Fingerprint(tool string, args map[string]any) string {
	canonical := struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	}{
		Tool: tool,
		Args: canonicalizeMap(args),
	}
	// json.Marshal of a map[string]any sorts keys already, but canonicalizeMap
	// rebuilds nested maps explicitly so key order is stable regardless of
	// Go version/encoding changes.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make(map[string]any, len(m))
	for _, k := range keys {
		result[k] = canonicalizeValue(m[k])
	}
	return result
}

func canonicalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = canonicalizeValue(item)
		}
		return result
	default:
		return v
	}
}
