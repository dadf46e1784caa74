package perf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key prefixes keep the three specialized key spaces disjoint inside their
// stores and make invalidation patterns predictable.
const (
	responseKeyPrefix  = "response:"
	templateKeyPrefix  = "template:"
	parameterKeyPrefix = "params:"
)

// ResponseKey derives the response store key for a caller-provided
// identifier.
func ResponseKey(id string) string {
	return responseKeyPrefix + id
}

// TemplateKey derives the template store key for a template path.
func TemplateKey(path string) string {
	return templateKeyPrefix + path
}

// ParameterKey derives a stable parameter store key from a requirement
// string and a context object. Structurally equal contexts always produce
// the same key regardless of map iteration or property order.
func ParameterKey(requirement string, context map[string]any) string {
	var sb strings.Builder
	sb.WriteString(requirement)
	sb.WriteByte('\n')
	writeCanonical(&sb, context)

	sum := sha256.Sum256([]byte(sb.String()))
	return parameterKeyPrefix + hex.EncodeToString(sum[:16])
}

// writeCanonical serializes a value deterministically: map keys are sorted,
// everything else follows JSON encoding. Values JSON cannot represent fall
// back to fmt formatting so key derivation never fails.
func writeCanonical(sb *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
		sb.WriteString("null")

	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			sb.Write(encoded)
			sb.WriteByte(':')
			writeCanonical(sb, v[k])
		}
		sb.WriteByte('}')

	case []any:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')

	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(sb, "%q", fmt.Sprintf("%v", v))
			return
		}
		sb.Write(encoded)
	}
}
