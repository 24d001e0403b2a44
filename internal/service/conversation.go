package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"docchat/internal/blobstore"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/vectorstore/flat"
)

// Policy decides what a new ingestion does with passages already indexed.
type Policy string

const (
	// PolicyAccumulate keeps earlier passages and adds the new ones.
	PolicyAccumulate Policy = "accumulate"
	// PolicyReplace drops earlier passages before indexing the new ones.
	PolicyReplace Policy = "replace"
)

// ParsePolicy validates a configured policy name. There is no default.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAccumulate, PolicyReplace:
		return p, nil
	case "":
		return "", errors.New("ingestion policy must be set to accumulate or replace")
	default:
		return "", fmt.Errorf("unknown ingestion policy %q", s)
	}
}

// Deps are the collaborators of a Conversation. Store and Summarizer are
// optional.
type Deps struct {
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Completer  domain.Completer
	Summarizer domain.Summarizer
	Store      blobstore.Store
	Logger     logr.Logger
}

// Options tune a Conversation.
type Options struct {
	Policy              Policy
	TopK                int
	IndexLocation       string
	EmbedBatchSize      int
	CompletionTimeout   time.Duration
	SummaryMaxSentences int
	PromptTemplate      string
}

// IngestReport describes a committed ingestion.
type IngestReport struct {
	Documents int    `json:"documents"`
	Passages  int    `json:"passages"`
	IndexSize int    `json:"index_size"`
	Summary   string `json:"summary,omitempty"`
}

// Reply is the outcome of a successful Ask.
type Reply struct {
	Answer  string
	History []domain.Turn
	Sources []domain.SearchResult
}

// Conversation binds one vector index to one multi-turn dialogue. It is
// Uninitialized until the first ingest (or Restore) and Ready afterwards.
// Ingest, Ask, Query and Reset are mutually exclusive.
type Conversation struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	completer  domain.Completer
	summarizer domain.Summarizer
	store      blobstore.Store
	prompt     *PromptBuilder
	logger     logr.Logger
	opts       Options

	// sem is a one-slot lock; waiting on it honors context cancellation.
	sem     chan struct{}
	index   *flat.Index
	history []domain.Turn
}

// New validates deps and opts and returns an Uninitialized conversation.
func New(deps Deps, opts Options) (*Conversation, error) {
	if deps.Chunker == nil || deps.Embedder == nil || deps.Completer == nil {
		return nil, errors.New("chunker, embedder and completer are required")
	}
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}
	opts.Policy = policy
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.IndexLocation == "" {
		opts.IndexLocation = "faiss_index"
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = embedding.DefaultBatchSize
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = 60 * time.Second
	}
	prompt, err := NewPromptBuilder(opts.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("prompt template: %w", err)
	}
	logger := deps.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Conversation{
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		completer:  deps.Completer,
		summarizer: deps.Summarizer,
		store:      deps.Store,
		prompt:     prompt,
		logger:     logger,
		opts:       opts,
		sem:        make(chan struct{}, 1),
	}, nil
}

func (c *Conversation) lock(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conversation) unlock() { <-c.sem }

// Ready reports whether an index is loaded.
func (c *Conversation) Ready() bool {
	c.sem <- struct{}{}
	defer c.unlock()
	return c.index != nil
}

// History returns a copy of the conversation so far.
func (c *Conversation) History() []domain.Turn {
	c.sem <- struct{}{}
	defer c.unlock()
	return c.historyCopy()
}

// Policy returns the configured ingestion policy.
func (c *Conversation) Policy() Policy { return c.opts.Policy }

func (c *Conversation) historyCopy() []domain.Turn {
	out := make([]domain.Turn, len(c.history))
	copy(out, c.history)
	return out
}

// Restore loads a previously persisted index. It returns false, without
// error, when nothing was persisted.
func (c *Conversation) Restore(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	exists, err := c.store.Exists(ctx, c.opts.IndexLocation)
	if err != nil {
		return false, domain.E(domain.KindIndexBuild, "restore", err)
	}
	if !exists {
		c.logger.Info("no persisted index", "location", c.opts.IndexLocation)
		return false, nil
	}
	// the blob can vanish between Exists and Load
	ix, err := flat.Load(ctx, c.store, c.opts.IndexLocation)
	if errors.Is(err, domain.ErrIndexNotFound) {
		c.logger.Info("no persisted index", "location", c.opts.IndexLocation)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ix.Dimension() != c.embedder.Dimension() {
		return false, domain.Errorf(domain.KindIndexBuild, "restore", "persisted index has dimension %d but %s embedder produces %d", ix.Dimension(), c.embedder.Name(), c.embedder.Dimension())
	}
	if err := c.lock(ctx); err != nil {
		return false, err
	}
	defer c.unlock()
	c.index = ix
	c.history = nil
	c.logger.Info("restored index", "location", c.opts.IndexLocation, "passages", ix.Len())
	return true, nil
}

// Ingest indexes docs according to the configured policy and clears the
// history. On failure the previous index and history are kept.
func (c *Conversation) Ingest(ctx context.Context, docs []domain.Document) (*IngestReport, error) {
	return c.IngestWithProgress(ctx, docs, nil)
}

// IngestWithProgress is Ingest with a callback reporting embedding progress.
func (c *Conversation) IngestWithProgress(ctx context.Context, docs []domain.Document, progress embedding.ProgressFunc) (*IngestReport, error) {
	const op = "ingest"
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Text) != "" {
			texts = append(texts, d.Text)
		}
	}
	if len(texts) == 0 {
		return nil, domain.E(domain.KindIngestion, op,
			domain.Errorf(domain.KindExtraction, "ingest", "no text in %d document(s)", len(docs)))
	}
	corpus := strings.Join(texts, "\n\n")

	// chunking and embedding run before taking the lock
	passages, err := c.chunker.Chunk(corpus)
	if err != nil {
		return nil, domain.E(domain.KindIngestion, op, fmt.Errorf("chunk: %w", err))
	}
	if len(passages) == 0 {
		return nil, domain.Errorf(domain.KindIngestion, op, "chunker produced no passages")
	}
	vectors, err := embedding.EmbedMany(ctx, c.embedder, passages, c.opts.EmbedBatchSize, progress)
	if err != nil {
		return nil, domain.E(domain.KindIngestion, op, err)
	}
	report := &IngestReport{Documents: len(texts), Passages: len(passages)}
	if c.summarizer != nil {
		summary, err := c.summarizer.Summarize(corpus, c.opts.SummaryMaxSentences)
		if err != nil {
			c.logger.Error(err, "summarize failed")
		}
		report.Summary = summary
	}

	if err := c.lock(ctx); err != nil {
		return nil, domain.E(domain.KindIngestion, op, err)
	}
	defer c.unlock()

	next, err := c.nextIndex(passages, vectors)
	if err != nil {
		return nil, domain.E(domain.KindIngestion, op, err)
	}
	if c.store != nil {
		if err := next.Persist(ctx, c.store, c.opts.IndexLocation); err != nil {
			return nil, domain.E(domain.KindIngestion, op, err)
		}
	}
	c.index = next
	c.history = nil
	report.IndexSize = next.Len()
	c.logger.V(1).Info("ingested", "documents", report.Documents, "passages", report.Passages, "index_size", report.IndexSize, "policy", string(c.opts.Policy))
	return report, nil
}

// nextIndex builds the index that an ingestion would commit, without
// touching the live one.
func (c *Conversation) nextIndex(passages []string, vectors [][]float64) (*flat.Index, error) {
	if c.index == nil || c.opts.Policy == PolicyReplace {
		return flat.Build(passages, vectors)
	}
	next := c.index.Clone()
	if err := next.Add(passages, vectors); err != nil {
		return nil, err
	}
	return next, nil
}

// Ask answers question from the top passages and records the turn. A failed
// or cancelled Ask leaves the history untouched.
func (c *Conversation) Ask(ctx context.Context, question string) (*Reply, error) {
	const op = "ask"
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.Errorf(domain.KindInvalid, op, "question is empty")
	}
	if err := c.lock(ctx); err != nil {
		return nil, domain.E(domain.KindCompletion, op, err)
	}
	defer c.unlock()
	if c.index == nil {
		return nil, domain.E(domain.KindNotReady, op, nil)
	}

	results, err := c.retrieve(ctx, question, c.opts.TopK)
	if err != nil {
		return nil, domain.E(domain.KindRetrieval, op, err)
	}
	prompt, err := c.prompt.Build(question, results)
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, fmt.Errorf("render prompt: %w", err))
	}

	cctx, cancel := context.WithTimeout(ctx, c.opts.CompletionTimeout)
	answer, err := c.completer.Complete(cctx, prompt, c.historyCopy())
	cancel()
	if err != nil {
		return nil, domain.E(domain.KindCompletion, op, err)
	}
	// the caller gave up; it never sees this answer, so it is not recorded
	if err := ctx.Err(); err != nil {
		return nil, domain.E(domain.KindCompletion, op, err)
	}

	c.history = append(c.history, domain.Turn{Question: question, Answer: answer})
	c.logger.V(1).Info("answered", "turns", len(c.history), "sources", len(results))
	return &Reply{Answer: answer, History: c.historyCopy(), Sources: results}, nil
}

// Query returns the topK passages most similar to query without calling the
// completer or touching the history.
func (c *Conversation) Query(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	const op = "query"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.Errorf(domain.KindInvalid, op, "query is empty")
	}
	if err := c.lock(ctx); err != nil {
		return nil, domain.E(domain.KindRetrieval, op, err)
	}
	defer c.unlock()
	if c.index == nil {
		return nil, domain.E(domain.KindNotReady, op, nil)
	}
	if topK <= 0 {
		topK = c.opts.TopK
	}
	results, err := c.retrieve(ctx, query, topK)
	if err != nil {
		return nil, domain.E(domain.KindRetrieval, op, err)
	}
	return results, nil
}

func (c *Conversation) retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.index.Search(vec, topK)
}

// Reset deletes the persisted index, drops the in-memory index and history,
// and returns to Uninitialized. Resetting twice is not an error.
func (c *Conversation) Reset(ctx context.Context) error {
	const op = "reset"
	if err := c.lock(ctx); err != nil {
		return domain.E(domain.KindReset, op, err)
	}
	defer c.unlock()
	if c.store != nil {
		if err := c.store.Delete(ctx, c.opts.IndexLocation); err != nil {
			return domain.E(domain.KindReset, op, err)
		}
	}
	if c.index != nil {
		c.index.Clear()
	}
	c.index = nil
	c.history = nil
	c.logger.V(1).Info("reset", "location", c.opts.IndexLocation)
	return nil
}
