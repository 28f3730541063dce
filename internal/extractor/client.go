package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// Client calls a remote face service over HTTP.
//
// Wire contract: POST {base}/v1/embeddings with {"images": [<base64>, ...]}
// returns {"embeddings": [[...floats...] | null, ...]}, one slot per input,
// null where no face was found.
type Client struct {
	baseURL string
	dim     int
	http    *http.Client
}

func NewClient(baseURL string, dim int, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		dim:     dim,
		http:    &http.Client{Timeout: timeout},
	}
}

type embeddingsRequest struct {
	Images []string `json:"images"`
}

type embeddingsResponse struct {
	Embeddings []models.EmbeddingVector `json:"embeddings"`
}

func (c *Client) ExtractMany(ctx context.Context, images [][]byte) ([]models.EmbeddingVector, error) {
	start := time.Now()
	vecs, err := c.extract(ctx, images)
	observability.ExtractDuration.WithLabelValues("many").Observe(time.Since(start).Seconds())
	return vecs, err
}

func (c *Client) ExtractOne(ctx context.Context, image []byte) (models.EmbeddingVector, error) {
	start := time.Now()
	vecs, err := c.extract(ctx, [][]byte{image})
	observability.ExtractDuration.WithLabelValues("one").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) extract(ctx context.Context, images [][]byte) ([]models.EmbeddingVector, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}

	body, err := json.Marshal(embeddingsRequest{Images: encoded})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: face service returned %d", ErrUnavailable, resp.StatusCode)
	}

	var out embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(out.Embeddings) != len(images) {
		return nil, fmt.Errorf("%w: got %d result slots for %d images", ErrUnavailable, len(out.Embeddings), len(images))
	}
	for i, vec := range out.Embeddings {
		if vec != nil && len(vec) != c.dim {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d", ErrUnavailable, i, len(vec), c.dim)
		}
	}
	return out.Embeddings, nil
}
