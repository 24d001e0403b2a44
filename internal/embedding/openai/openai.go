package openai

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"docchat/internal/domain"
	"docchat/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client    *goopenai.Client
	model     string
	dimension int
	maxChars  int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL       string
	APIKeyEnv     string
	Model         string
	Dimension     int
	MaxInputChars int
	Timeout       time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = string(goopenai.SmallEmbedding3)
	}
	if cfg.Dimension == 0 {
		// text-embedding-3-small
		cfg.Dimension = 1536
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: t}
	return &Client{
		client:    goopenai.NewClientWithConfig(oc),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		maxChars:  cfg.MaxInputChars,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Results are placed by the index the
// server reports, not by response order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, domain.Errorf(domain.KindEmbedding, "embed", "cannot embed empty text")
		}
		if err := embedding.CheckLength(t, c.maxChars); err != nil {
			return nil, err
		}
	}
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, domain.E(domain.KindEmbedding, "openai embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.Errorf(domain.KindEmbedding, "openai embeddings", "got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, domain.Errorf(domain.KindEmbedding, "openai embeddings", "unexpected embedding index %d", d.Index)
		}
		if len(d.Embedding) != c.dimension {
			return nil, domain.Errorf(domain.KindEmbedding, "openai embeddings", "dimension %d, want %d", len(d.Embedding), c.dimension)
		}
		v := make([]float64, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float64(x)
		}
		l2normalize(v)
		out[d.Index] = v
	}
	return out, nil
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] *= inv
	}
}
