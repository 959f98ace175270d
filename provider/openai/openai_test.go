package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateWithTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req["model"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "hello"}},
			},
			"usage": map[string]interface{}{"prompt_tokens": 12, "completion_tokens": 4},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	text, in, out, err := c.GenerateWithTokens(context.Background(), "say hello")
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.Equal(t, int64(12), in)
	require.Equal(t, int64(4), out)
}

func TestGenerateErrors(t *testing.T) {
	c := NewClient(Options{Model: "gpt-4o-mini"})
	_, err := c.Generate(context.Background(), "hi")
	require.Error(t, err, "missing api key must fail")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limit"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c = NewClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	_, err = c.Generate(context.Background(), "hi")
	require.ErrorContains(t, err, "429")
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2}, "index": 0},
				{"embedding": []float32{0.3, 0.4}, "index": 1},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "k", BaseURL: srv.URL, EmbeddingModel: "text-embedding-3-small"})
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Equal(t, []float32{0.3, 0.4}, vecs[1])

	vecs, err = c.Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestCalculateCost(t *testing.T) {
	c := NewClient(Options{CostPer1KInput: 0.15, CostPer1KOutput: 0.6})
	require.InDelta(t, 0.15+1.2, c.CalculateCost(1000, 2000), 1e-9)
	require.Zero(t, c.CalculateCost(0, 0))
}
