package embed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lodestone/internal/store"
)

// OllamaEmbedder calls the Ollama /api/embed endpoint. Vectors are
// L2-normalized before being returned so the normalization contract matches
// the deterministic backend.
type OllamaEmbedder struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewOllamaEmbedder creates an embedder targeting the given Ollama instance.
// dim must match the model's output dimensionality.
func NewOllamaEmbedder(baseURL, model string, dim int) *OllamaEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Model returns the configured model name.
func (e *OllamaEmbedder) Model() string { return e.model }

func (e *OllamaEmbedder) Dimension() int { return e.dim }

func (e *OllamaEmbedder) EmbedBlock(b store.Block) ([]float32, error) {
	return e.embed(b.Content)
}

func (e *OllamaEmbedder) EmbedQuery(text string) ([]float32, error) {
	return e.embed(text)
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *OllamaEmbedder) embed(text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	resp, err := e.client.Post(e.baseURL+"/api/embed", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(result.Embeddings))
	}

	vec := result.Embeddings[0]
	Normalize(vec)
	return vec, nil
}
