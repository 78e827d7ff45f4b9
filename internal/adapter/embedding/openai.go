package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"priorart/internal/domain"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. The
// same type serves OpenAI, Gemini (via its OpenAI-compatible surface) and
// local Ollama instances.
type OpenAIEmbedder struct {
	provider  string
	apiKey    string
	model     string
	baseURL   string
	dimension int
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(apiKeyEnv, model string, dimension int, timeout time.Duration) (*OpenAIEmbedder, error) {
	return newKeyedEmbedder("openai", apiKeyEnv, model, "https://api.openai.com/v1", dimension, timeout)
}

func NewGeminiEmbedder(apiKeyEnv, model string, dimension int, timeout time.Duration) (*OpenAIEmbedder, error) {
	return newKeyedEmbedder("gemini", apiKeyEnv, model, "https://generativelanguage.googleapis.com/v1beta/openai", dimension, timeout)
}

func NewOllamaEmbedder(model, baseURL string, dimension int, timeout time.Duration) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	if dimension <= 0 {
		dimension = modelDimension(model)
	}

	return &OpenAIEmbedder{
		provider:  "ollama",
		apiKey:    "ollama",
		model:     model,
		baseURL:   baseURL,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func newKeyedEmbedder(provider, apiKeyEnv, model, baseURL string, dimension int, timeout time.Duration) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key not found in environment variable %s", domain.ErrConfiguration, apiKeyEnv)
	}
	if dimension <= 0 {
		dimension = modelDimension(model)
	}

	return &OpenAIEmbedder{
		provider:  provider,
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-small":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-ada-002":
		return 1536
	case "gemini-embedding-001":
		return 3072
	case "text-embedding-004":
		return 768
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	}
	return 1536
}

// Embed requests the embedding for a single text. Failures, timeouts and
// non-2xx responses all surface as domain.ErrProvider.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{
		Input: []string{text},
		Model: e.model,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrProvider, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProvider, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: API returned status %d: %s", domain.ErrProvider, resp.StatusCode, preview(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("%w: parse response (body: %s): %v", domain.ErrProvider, preview(body), err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("%w: API error: %s", domain.ErrProvider, embResp.Error.Message)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrProvider)
	}

	return embResp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ProviderID() string {
	return e.provider + "/" + e.model
}

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
