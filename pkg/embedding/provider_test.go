package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_MissingCredential(t *testing.T) {
	tests := []struct {
		name     string
		provider string
	}{
		{name: "gemini", provider: ProviderGemini},
		{name: "openai", provider: ProviderOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.provider, "")
			assert.Nil(t, p)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("cohere", "key")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewProvider_LocalNeedsNoCredential(t *testing.T) {
	p, err := NewProvider(ProviderLocal, "")
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, p.Name())
}

func TestNewProvider_DefaultsToGemini(t *testing.T) {
	p, err := NewProvider("", "key")
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, p.Name())
}

func TestGeminiProvider_Embed(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{
				"values": []float32{0.1, 0.2, 0.3},
			},
		})
	}))
	defer server.Close()

	p, err := NewGeminiProvider("test-key")
	require.NoError(t, err)
	p.SetBaseURL(server.URL)

	result, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, result.Provider)
	assert.Equal(t, "text-embedding-004", result.Model)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, result.Vector)
	assert.Equal(t, 3, result.Dimensions)
	assert.Equal(t, "SEMANTIC_SIMILARITY", gotBody["taskType"])
}

func TestGeminiProvider_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer server.Close()

	p, err := NewGeminiProvider("test-key")
	require.NoError(t, err)
	p.SetBaseURL(server.URL)

	_, err = p.Embed(context.Background(), "hello")
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
	assert.Contains(t, provErr.Body, "quota exceeded")
}

func TestGeminiProvider_TruncatesInput(t *testing.T) {
	var sentText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sentText = req.Content.Parts[0].Text
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.5}},
		})
	}))
	defer server.Close()

	p, err := NewGeminiProvider("test-key")
	require.NoError(t, err)
	p.SetBaseURL(server.URL)

	_, err = p.Embed(context.Background(), strings.Repeat("x", geminiMaxChars+500))
	require.NoError(t, err)
	assert.Len(t, sentText, geminiMaxChars)
}

func TestGeminiProvider_BatchOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Vector length encodes the input length so order is observable.
		values := make([]float32, len(req.Content.Parts[0].Text))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": values},
		})
	}))
	defer server.Close()

	p, err := NewGeminiProvider("test-key")
	require.NoError(t, err)
	p.SetBaseURL(server.URL)

	results, err := p.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Dimensions)
	assert.Equal(t, 2, results[1].Dimensions)
	assert.Equal(t, 3, results[2].Dimensions)
}

func TestLocalProvider_Deterministic(t *testing.T) {
	p := NewLocalProvider(64)

	a, err := p.Embed(context.Background(), "a")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "a")
	require.NoError(t, err)
	c, err := p.Embed(context.Background(), "b")
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
	assert.NotEqual(t, a.Vector, c.Vector)
	assert.Equal(t, 64, a.Dimensions)
}

func TestLocalProvider_DefaultDimension(t *testing.T) {
	p := NewLocalProvider(0)
	assert.Equal(t, DefaultLocalDimension, p.Dimension())
}
