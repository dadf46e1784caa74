package llmgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionServer fakes an OpenAI-compatible chat completion endpoint.
func completionServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	srv := completionServer(t, "hello from model")
	defer srv.Close()

	gen, err := New(Config{BaseURL: srv.URL, Model: "test-model", Timeout: time.Second})
	require.NoError(t, err)

	doc, err := gen.Generate(context.Background(), "say hello")
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"hello from model"}`, string(doc))
}

func TestGenerateParameters(t *testing.T) {
	srv := completionServer(t, `{"entities":["person","org"],"depth":2}`)
	defer srv.Close()

	gen, err := New(Config{BaseURL: srv.URL, Model: "test-model", Timeout: time.Second})
	require.NoError(t, err)

	params, err := gen.GenerateParameters(context.Background(), "extract entities", map[string]any{"domain": "news"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entities":["person","org"],"depth":2}`, string(params))
}

func TestGenerateParametersRejectsNonJSON(t *testing.T) {
	srv := completionServer(t, "sorry, I cannot do that")
	defer srv.Close()

	gen, err := New(Config{BaseURL: srv.URL, Model: "test-model", Timeout: time.Second})
	require.NoError(t, err)

	_, err = gen.GenerateParameters(context.Background(), "extract entities", nil)
	require.Error(t, err)
}
