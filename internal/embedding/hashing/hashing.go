package hashing

import (
	"context"
	"hash/fnv"
	"math"

	"docchat/internal/embedding"
	"docchat/internal/textutil"
)

// Embedder maps text to a fixed-size vector by hashing word unigrams and
// bigrams into buckets, then L2-normalizing. It needs no corpus preparation,
// so vectors stay comparable across ingestion batches.
type Embedder struct {
	dimension int
	maxChars  int
}

// NewEmbedder creates a hashing embedder. maxChars caps the input length; zero
// disables the cap.
func NewEmbedder(dimension, maxChars int) *Embedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &Embedder{dimension: dimension, maxChars: maxChars}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed embedding for the given text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	if err := embedding.CheckLength(text, e.maxChars); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dimension)
	tokens := textutil.Tokens(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1.0)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	// the top bit picks the sign so collisions tend to cancel
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
