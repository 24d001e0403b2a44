package flat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"docchat/internal/blobstore"
	"docchat/internal/domain"
	"docchat/internal/vectorstore"
)

// Index is an exact nearest-neighbour index using brute-force inner product.
// Vectors are expected to be L2-normalized, making scores cosine similarities.
type Index struct {
	mu        sync.RWMutex
	dimension int
	nextSeq   uint64
	entries   []vectorstore.Entry
}

// New creates an empty index of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, domain.Errorf(domain.KindIndexBuild, "new index", "invalid dimension %d", dimension)
	}
	return &Index{dimension: dimension}, nil
}

// Build creates an index holding the given passages. It fails on empty input.
func Build(texts []string, vectors [][]float64) (*Index, error) {
	if len(texts) == 0 {
		return nil, domain.Errorf(domain.KindIndexBuild, "build index", "no passages")
	}
	if len(vectors) == 0 {
		return nil, domain.Errorf(domain.KindIndexBuild, "build index", "no vectors")
	}
	ix, err := New(len(vectors[0]))
	if err != nil {
		return nil, err
	}
	if err := ix.Add(texts, vectors); err != nil {
		return nil, domain.E(domain.KindIndexBuild, "build index", err)
	}
	return ix, nil
}

// Dimension returns the vector dimension accepted by the index.
func (ix *Index) Dimension() int { return ix.dimension }

// Len returns the number of stored passages.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Add appends passages with their vectors. The batch is validated before any
// entry is inserted, so a failed Add leaves the index unchanged.
func (ix *Index) Add(texts []string, vectors [][]float64) error {
	if len(texts) != len(vectors) {
		return domain.Errorf(domain.KindIndexBuild, "add", "%d passages but %d vectors", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != ix.dimension {
			return domain.Errorf(domain.KindIndexBuild, "add", "vector %d has dimension %d, want %d", i, len(v), ix.dimension)
		}
	}
	batch := make([]vectorstore.Entry, len(texts))
	for i := range texts {
		vec := make([]float64, len(vectors[i]))
		copy(vec, vectors[i])
		batch[i] = vectorstore.Entry{ID: uuid.NewString(), Text: texts[i], Vector: vec}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range batch {
		batch[i].Seq = ix.nextSeq
		ix.nextSeq++
	}
	ix.entries = append(ix.entries, batch...)
	return nil
}

// Clear removes all entries. The index stays usable.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
}

// Clone returns an independent copy, sharing only immutable vectors.
func (ix *Index) Clone() *Index {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entries := make([]vectorstore.Entry, len(ix.entries))
	copy(entries, ix.entries)
	return &Index{dimension: ix.dimension, nextSeq: ix.nextSeq, entries: entries}
}

// Passages returns all stored passages in insertion order.
func (ix *Index) Passages() []domain.Passage {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]domain.Passage, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = domain.Passage{ID: e.ID, Seq: e.Seq, Text: e.Text}
	}
	return out
}

// Search returns the topK passages most similar to vector, by decreasing
// score. Equal scores keep insertion order.
func (ix *Index) Search(vector []float64, topK int) ([]domain.SearchResult, error) {
	if len(vector) != ix.dimension {
		return nil, domain.Errorf(domain.KindRetrieval, "search", "query dimension %d, want %d", len(vector), ix.dimension)
	}
	if topK <= 0 {
		topK = 4
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make([]float64, len(ix.entries))
	for i := range ix.entries {
		scores[i] = dot(ix.entries[i].Vector, vector)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	// entries are stored in insertion order, so a stable sort breaks ties by it
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		e := ix.entries[j]
		results = append(results, domain.SearchResult{
			Passage: domain.Passage{ID: e.ID, Seq: e.Seq, Text: e.Text},
			Score:   scores[j],
		})
	}
	return results, nil
}

// Persist writes the index to store under location.
func (ix *Index) Persist(ctx context.Context, store blobstore.Store, location string) error {
	ix.mu.RLock()
	snap := &vectorstore.Snapshot{
		Version:   vectorstore.SnapshotVersion,
		Dimension: ix.dimension,
		NextSeq:   ix.nextSeq,
		Entries:   ix.entries,
	}
	data, err := vectorstore.Encode(snap)
	ix.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := store.Write(ctx, location, data); err != nil {
		return fmt.Errorf("write index %q: %w", location, err)
	}
	return nil
}

// Load reads an index previously written by Persist. A missing location
// yields an error matching domain.ErrIndexNotFound.
func Load(ctx context.Context, store blobstore.Store, location string) (*Index, error) {
	data, err := store.Read(ctx, location)
	if errors.Is(err, blobstore.ErrNotExist) {
		return nil, domain.Errorf(domain.KindIndexNotFound, "load index", "no index at %q", location)
	}
	if err != nil {
		return nil, fmt.Errorf("read index %q: %w", location, err)
	}
	snap, err := vectorstore.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode index %q: %w", location, err)
	}
	if snap.Dimension <= 0 {
		return nil, fmt.Errorf("decode index %q: invalid dimension %d", location, snap.Dimension)
	}
	return &Index{dimension: snap.Dimension, nextSeq: snap.NextSeq, entries: snap.Entries}, nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
