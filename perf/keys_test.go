package perf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParameterKeyOrderIndependence(t *testing.T) {
	a := ParameterKey("extract entities", map[string]any{
		"domain": "finance",
		"depth":  3,
		"nested": map[string]any{"b": 2, "a": 1},
	})
	b := ParameterKey("extract entities", map[string]any{
		"nested": map[string]any{"a": 1, "b": 2},
		"depth":  3,
		"domain": "finance",
	})

	assert.Equal(t, a, b)
}

func TestParameterKeyDistinguishesContent(t *testing.T) {
	base := map[string]any{"domain": "finance"}

	assert.NotEqual(t,
		ParameterKey("extract entities", base),
		ParameterKey("extract relations", base))
	assert.NotEqual(t,
		ParameterKey("extract entities", base),
		ParameterKey("extract entities", map[string]any{"domain": "legal"}))
}

func TestParameterKeyNilAndEmptyContext(t *testing.T) {
	assert.Equal(t,
		ParameterKey("req", nil),
		ParameterKey("req", nil))
	// nil and empty maps canonicalize identically
	assert.Equal(t,
		ParameterKey("req", nil),
		ParameterKey("req", map[string]any{}))
}

func TestParameterKeyUnmarshalableValues(t *testing.T) {
	// Values JSON cannot encode still produce a stable key
	ctx := map[string]any{"ch": make(chan int)}
	assert.NotPanics(t, func() { ParameterKey("req", ctx) })
}

func TestKeyPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(ResponseKey("id"), "response:"))
	assert.True(t, strings.HasPrefix(TemplateKey("p.tmpl"), "template:"))
	assert.True(t, strings.HasPrefix(ParameterKey("r", nil), "params:"))
}
