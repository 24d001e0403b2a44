// Package embedding holds helpers shared by the embedder implementations.
package embedding

import (
	"context"
	"fmt"

	"docchat/internal/domain"
)

// DefaultBatchSize bounds how many texts are sent to an embedder at once.
const DefaultBatchSize = 100

// ProgressFunc is called after each sub-batch with the number of texts done.
type ProgressFunc func(done, total int)

// EmbedMany embeds texts in sub-batches of at most batchSize, preserving input
// order. The result does not depend on batchSize.
func EmbedMany(ctx context.Context, e domain.Embedder, texts []string, batchSize int, progress ProgressFunc) ([][]float64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, domain.E(domain.KindEmbedding, "embed batch", err)
		}
		end := min(start+batchSize, len(texts))
		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, domain.Errorf(domain.KindEmbedding, "embed batch", "%s returned %d vectors for %d texts", e.Name(), len(vecs), end-start)
		}
		out = append(out, vecs...)
		if progress != nil {
			progress(len(out), len(texts))
		}
	}
	return out, nil
}

// CheckLength rejects inputs longer than maxChars runes. Embedders never
// truncate silently.
func CheckLength(text string, maxChars int) error {
	if maxChars <= 0 {
		return nil
	}
	if n := len([]rune(text)); n > maxChars {
		return domain.E(domain.KindEmbedding, "embed", fmt.Errorf("input of %d characters exceeds limit of %d", n, maxChars))
	}
	return nil
}
