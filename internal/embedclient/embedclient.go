// Package embedclient is a thin typed HTTP client for the external
// embedding service (spec.md §6). The provider itself is out of scope;
// this package only implements the wire contract against it.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Vector is a single embedding vector.
type Vector = []float32

// HealthProbeTimeout bounds the is_available check regardless of the
// caller's own context deadline.
const HealthProbeTimeout = 2 * time.Second

// Client talks to the embedding service's /embed and /health endpoints.
type Client struct {
	baseURL string
	dims    int
	http    *http.Client
}

// New creates a Client configured for baseURL and the store's configured
// dimension D.
func New(baseURL string, dims int) *Client {
	return &Client{
		baseURL: baseURL,
		dims:    dims,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Dimensions returns the configured D. It does not probe the service.
func (c *Client) Dimensions() int { return c.dims }

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
}

// ErrUnavailable indicates the embedding service could not be reached or
// timed out. Unusable payloads are reported as ErrProtocol.
var ErrUnavailable = fmt.Errorf("embedder unavailable")

// ErrProtocol indicates a non-2xx response or a schema mismatch.
var ErrProtocol = fmt.Errorf("embedder protocol error")

// EmbedBatch embeds N texts in one request. Returns one vector per text,
// in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("embed request failed", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrProtocol, resp.StatusCode, string(b))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProtocol, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProtocol, len(texts), len(result.Embeddings))
	}
	if result.Dimensions != 0 && result.Dimensions != c.dims {
		return nil, fmt.Errorf("%w: service reports %d dims, configured for %d", ErrProtocol, result.Dimensions, c.dims)
	}

	return result.Embeddings, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) (Vector, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type healthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// IsAvailable performs a bounded health probe. It never returns an error;
// any failure (timeout, connection refused, non-2xx, dimension mismatch)
// is reported as false.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return false
	}
	if h.Status != "ok" {
		return false
	}
	if h.Dimensions != 0 && h.Dimensions != c.dims {
		log.Warn("embedder dimension mismatch", "reported", h.Dimensions, "configured", c.dims)
		return false
	}
	return true
}
