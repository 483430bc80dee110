package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	geminiBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	geminiEmbeddingModel = "text-embedding-004"
	geminiDimension      = 768

	// Roughly 5000 tokens; the API rejects longer inputs.
	geminiMaxChars = 20000
)

// GeminiProvider implements Provider for the Gemini embedContent API.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini embedding provider. The API key is
// required.
func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Field: "gemini_api_key", Message: "credential is not configured"}
	}

	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: geminiBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (p *GeminiProvider) Name() string   { return ProviderGemini }
func (p *GeminiProvider) Model() string  { return geminiEmbeddingModel }
func (p *GeminiProvider) Dimension() int { return geminiDimension }

// SetBaseURL overrides the API endpoint. Used in tests.
func (p *GeminiProvider) SetBaseURL(url string) {
	p.baseURL = url
}

type geminiEmbedRequest struct {
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) (*Result, error) {
	truncated := truncate(text, geminiMaxChars)

	body, err := json.Marshal(geminiEmbedRequest{
		Content:  geminiContent{Parts: []geminiPart{{Text: truncated}}},
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", p.baseURL, geminiEmbeddingModel, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{Provider: ProviderGemini, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &Result{
		Vector:        parsed.Embedding.Values,
		Provider:      ProviderGemini,
		Model:         geminiEmbeddingModel,
		Dimensions:    len(parsed.Embedding.Values),
		TokenEstimate: estimateTokens(truncated),
	}, nil
}

// EmbedBatch embeds texts sequentially; the embedContent endpoint takes one
// input per call. Results are returned in input order.
func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Result, error) {
	results := make([]*Result, len(texts))
	for i, text := range texts {
		r, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}
