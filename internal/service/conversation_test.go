package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"docchat/internal/blobstore"
	"docchat/internal/blobstore/local"
	"docchat/internal/chunker"
	"docchat/internal/domain"
	"docchat/internal/embedding/hashing"
)

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	fn      func(ctx context.Context, prompt string, history []domain.Turn) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, history []domain.Turn) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, prompt, history)
	}
	return "answer based on: " + prompt, nil
}

type failingStore struct {
	blobstore.Store
	failWrite  bool
	failDelete bool
}

func (s *failingStore) Write(ctx context.Context, key string, data []byte) error {
	if s.failWrite {
		return errors.New("disk full")
	}
	return s.Store.Write(ctx, key, data)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	if s.failDelete {
		return errors.New("permission denied")
	}
	return s.Store.Delete(ctx, key)
}

type flakyEmbedder struct {
	*hashing.Embedder
	fail bool
}

func (e *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if e.fail {
		return nil, domain.Errorf(domain.KindEmbedding, "embed", "model unavailable")
	}
	return e.Embedder.EmbedBatch(ctx, texts)
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.fail {
		return nil, domain.Errorf(domain.KindEmbedding, "embed", "model unavailable")
	}
	return e.Embedder.Embed(ctx, text)
}

func newTestStore(t *testing.T) blobstore.Store {
	t.Helper()
	st, err := local.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return st
}

func newConversation(t *testing.T, policy Policy, size, overlap int, deps Deps) *Conversation {
	t.Helper()
	if deps.Chunker == nil {
		deps.Chunker = chunker.NewRecursive(size, overlap)
	}
	if deps.Embedder == nil {
		deps.Embedder = hashing.NewEmbedder(128, 0)
	}
	if deps.Completer == nil {
		deps.Completer = &fakeCompleter{}
	}
	c, err := New(deps, Options{Policy: policy, TopK: 4, CompletionTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func docs(texts ...string) []domain.Document {
	out := make([]domain.Document, len(texts))
	for i, s := range texts {
		out[i] = domain.Document{Name: fmt.Sprintf("doc%d.pdf", i), Text: s}
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"accumulate", PolicyAccumulate, false},
		{" Replace ", PolicyReplace, false},
		{"", "", true},
		{"merge", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_RequiresPolicy(t *testing.T) {
	_, err := New(Deps{
		Chunker:   chunker.NewRecursive(100, 10),
		Embedder:  hashing.NewEmbedder(16, 0),
		Completer: &fakeCompleter{},
	}, Options{})
	if err == nil {
		t.Fatal("expected error for missing policy")
	}
}

func TestAsk_ShortDocument(t *testing.T) {
	comp := &fakeCompleter{}
	c := newConversation(t, PolicyReplace, 10, 2, Deps{Completer: comp})

	report, err := c.Ingest(context.Background(), docs("Alpha Beta Gamma."))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Passages < 2 {
		t.Fatalf("passages = %d, want at least 2", report.Passages)
	}
	if !c.Ready() {
		t.Fatal("conversation should be ready after ingest")
	}

	reply, err := c.Ask(context.Background(), "What is first?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(reply.Answer, "Alpha") {
		t.Errorf("answer %q does not reference Alpha", reply.Answer)
	}
	if len(reply.History) != 1 || reply.History[0].Question != "What is first?" {
		t.Errorf("history = %+v", reply.History)
	}
	if len(comp.prompts) != 1 || !strings.Contains(comp.prompts[0], "Question: What is first?") {
		t.Errorf("prompt not grounded: %q", comp.prompts)
	}
}

func TestAsk_NotReady(t *testing.T) {
	c := newConversation(t, PolicyReplace, 100, 10, Deps{})
	_, err := c.Ask(context.Background(), "anything?")
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("err = %v, want NotReady", err)
	}
	if len(c.History()) != 0 {
		t.Errorf("history should stay empty, got %d turns", len(c.History()))
	}
	if _, err := c.Query(context.Background(), "anything", 2); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("Query err = %v, want NotReady", err)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	c := newConversation(t, PolicyReplace, 100, 10, Deps{})
	if _, err := c.Ingest(context.Background(), docs("some text here")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ask(context.Background(), "  "); domain.KindOf(err) != domain.KindInvalid {
		t.Errorf("KindOf = %s, want %s", domain.KindOf(err), domain.KindInvalid)
	}
}

func TestIngest_Policies(t *testing.T) {
	docA := "Apple orchards produce an autumn harvest of crisp apples."
	docB := "Submarines explore the ocean depths beneath the waves."

	tests := []struct {
		policy    Policy
		wantApple bool
	}{
		{PolicyReplace, false},
		{PolicyAccumulate, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			c := newConversation(t, tt.policy, 1000, 200, Deps{Store: newTestStore(t)})
			ctx := context.Background()
			if _, err := c.Ingest(ctx, docs(docA)); err != nil {
				t.Fatal(err)
			}
			if _, err := c.Ask(ctx, "what is harvested?"); err != nil {
				t.Fatal(err)
			}
			report, err := c.Ingest(ctx, docs(docB))
			if err != nil {
				t.Fatal(err)
			}
			if len(c.History()) != 0 {
				t.Error("ingest should clear history")
			}

			results, err := c.Query(ctx, "apple harvest ocean submarine", 10)
			if err != nil {
				t.Fatal(err)
			}
			var apple, ocean bool
			for _, r := range results {
				apple = apple || strings.Contains(r.Passage.Text, "Apple")
				ocean = ocean || strings.Contains(r.Passage.Text, "Submarines")
			}
			if !ocean {
				t.Error("second document missing from index")
			}
			if apple != tt.wantApple {
				t.Errorf("first document present = %v, want %v", apple, tt.wantApple)
			}
			wantSize := 1
			if tt.wantApple {
				wantSize = 2
			}
			if report.IndexSize != wantSize {
				t.Errorf("IndexSize = %d, want %d", report.IndexSize, wantSize)
			}
		})
	}
}

func TestAsk_HistoryOrder(t *testing.T) {
	c := newConversation(t, PolicyReplace, 200, 20, Deps{})
	ctx := context.Background()
	if _, err := c.Ingest(ctx, docs("Go is a programming language. It has goroutines and channels.")); err != nil {
		t.Fatal(err)
	}
	questions := []string{"What is Go?", "What does it have?"}
	var reply *Reply
	for _, q := range questions {
		var err error
		if reply, err = c.Ask(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	if len(reply.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(reply.History))
	}
	for i, q := range questions {
		if reply.History[i].Question != q {
			t.Errorf("turn %d question = %q, want %q", i, reply.History[i].Question, q)
		}
	}

	// the returned history is a copy
	reply.History[0].Question = "mutated"
	if c.History()[0].Question != questions[0] {
		t.Error("caller mutation leaked into conversation history")
	}
}

func TestAsk_CompletionTimeout(t *testing.T) {
	comp := &fakeCompleter{fn: func(ctx context.Context, _ string, _ []domain.Turn) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c, err := New(Deps{
		Chunker:   chunker.NewRecursive(200, 20),
		Embedder:  hashing.NewEmbedder(64, 0),
		Completer: comp,
	}, Options{Policy: PolicyReplace, CompletionTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := c.Ingest(ctx, docs("a small knowledge base about timeouts")); err != nil {
		t.Fatal(err)
	}

	_, err = c.Ask(ctx, "will this finish?")
	if !errors.Is(err, domain.ErrCompletion) {
		t.Fatalf("err = %v, want CompletionError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded in chain", err)
	}
	if n := len(c.History()); n != 0 {
		t.Errorf("history length = %d after timeout, want 0", n)
	}
}

func TestAsk_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	comp := &fakeCompleter{fn: func(context.Context, string, []domain.Turn) (string, error) {
		cancel()
		return "late answer", nil
	}}
	c := newConversation(t, PolicyReplace, 200, 20, Deps{Completer: comp})
	if _, err := c.Ingest(context.Background(), docs("cancellation is cooperative")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ask(ctx, "cancelled?"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(c.History()) != 0 {
		t.Error("cancelled ask recorded a turn")
	}
}

func TestAsk_RetrievalFailureKeepsHistory(t *testing.T) {
	emb := &flakyEmbedder{Embedder: hashing.NewEmbedder(64, 0)}
	c := newConversation(t, PolicyReplace, 200, 20, Deps{Embedder: emb})
	ctx := context.Background()
	if _, err := c.Ingest(ctx, docs("retrieval depends on embeddings")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ask(ctx, "first?"); err != nil {
		t.Fatal(err)
	}
	emb.fail = true
	_, err := c.Ask(ctx, "second?")
	if domain.KindOf(err) != domain.KindRetrieval {
		t.Fatalf("KindOf = %s, want %s", domain.KindOf(err), domain.KindRetrieval)
	}
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Errorf("cause not preserved: %v", err)
	}
	if n := len(c.History()); n != 1 {
		t.Errorf("history length = %d, want 1", n)
	}
}

func TestIngest_FailureKeepsPriorState(t *testing.T) {
	base := newTestStore(t)
	store := &failingStore{Store: base}
	emb := &flakyEmbedder{Embedder: hashing.NewEmbedder(64, 0)}
	c := newConversation(t, PolicyReplace, 200, 20, Deps{Store: store, Embedder: emb})
	ctx := context.Background()

	if _, err := c.Ingest(ctx, docs("the original knowledge base")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Ask(ctx, "what is there?"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		setup func()
		docs  []domain.Document
		cause error
	}{
		{"empty extraction", func() {}, docs("   ", ""), domain.ErrExtraction},
		{"embedding failure", func() { emb.fail = true }, docs("new text"), domain.ErrEmbedding},
		{"persist failure", func() { store.failWrite = true }, docs("new text"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			_, err := c.Ingest(ctx, tt.docs)
			if domain.KindOf(err) != domain.KindIngestion {
				t.Fatalf("KindOf = %s, want %s (err %v)", domain.KindOf(err), domain.KindIngestion, err)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("cause %v not in chain of %v", tt.cause, err)
			}
			if !c.Ready() {
				t.Error("conversation left ready state")
			}
			if n := len(c.History()); n != 1 {
				t.Errorf("history length = %d, want 1", n)
			}
			emb.fail = false
			results, err := c.Query(ctx, "original knowledge", 4)
			if err != nil || len(results) != 1 || !strings.Contains(results[0].Passage.Text, "original") {
				t.Errorf("prior index not intact: %v %v", results, err)
			}
		})
	}
}

func TestReset(t *testing.T) {
	base := newTestStore(t)
	store := &failingStore{Store: base}
	c := newConversation(t, PolicyAccumulate, 200, 20, Deps{Store: store})
	ctx := context.Background()

	// reset before any ingest is a no-op success
	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset on uninitialized: %v", err)
	}
	if _, err := c.Ingest(ctx, docs("text worth indexing")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := base.Exists(ctx, "faiss_index"); !ok {
		t.Fatal("index was not persisted")
	}

	store.failDelete = true
	if err := c.Reset(ctx); !errors.Is(err, domain.ErrReset) {
		t.Fatalf("err = %v, want ResetError", err)
	}
	if !c.Ready() {
		t.Error("failed reset changed state")
	}
	store.failDelete = false

	for i := 0; i < 2; i++ {
		if err := c.Reset(ctx); err != nil {
			t.Fatalf("Reset #%d: %v", i+1, err)
		}
	}
	if c.Ready() {
		t.Error("conversation still ready after reset")
	}
	if ok, _ := base.Exists(ctx, "faiss_index"); ok {
		t.Error("persisted index survived reset")
	}
	if _, err := c.Ask(ctx, "anything?"); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("Ask after reset err = %v, want NotReady", err)
	}
}

func TestRestore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fresh := newConversation(t, PolicyAccumulate, 200, 20, Deps{Store: store})
	ok, err := fresh.Restore(ctx)
	if err != nil || ok {
		t.Fatalf("Restore on empty store = %v, %v; want false, nil", ok, err)
	}

	if _, err := fresh.Ingest(ctx, docs("persisted passages survive restarts")); err != nil {
		t.Fatal(err)
	}

	restarted := newConversation(t, PolicyAccumulate, 200, 20, Deps{Store: store})
	ok, err = restarted.Restore(ctx)
	if err != nil || !ok {
		t.Fatalf("Restore = %v, %v; want true, nil", ok, err)
	}
	results, err := restarted.Query(ctx, "persisted restarts", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Passage.Text, "persisted") {
		t.Errorf("restored results = %+v", results)
	}

	mismatched := newConversation(t, PolicyAccumulate, 200, 20, Deps{Store: store, Embedder: hashing.NewEmbedder(32, 0)})
	if _, err := mismatched.Restore(ctx); !errors.Is(err, domain.ErrIndexBuild) {
		t.Errorf("dimension mismatch err = %v, want IndexBuildError", err)
	}
}

func TestConversation_ConcurrentUse(t *testing.T) {
	c := newConversation(t, PolicyAccumulate, 100, 10, Deps{})
	ctx := context.Background()
	if _, err := c.Ingest(ctx, docs("concurrent access is serialized by a single lock")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Ask(ctx, fmt.Sprintf("question %d?", i)); err != nil {
				t.Errorf("Ask: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Ingest(ctx, docs(fmt.Sprintf("extra document number %d", i))); err != nil {
				t.Errorf("Ingest: %v", err)
			}
		}(i)
	}
	wg.Wait()

	results, err := c.Query(ctx, "document", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 9 {
		t.Errorf("index size = %d, want 9", len(results))
	}
}

func TestIngest_WaitHonorsContext(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	comp := &fakeCompleter{fn: func(context.Context, string, []domain.Turn) (string, error) {
		close(started)
		<-block
		return "done", nil
	}}
	c := newConversation(t, PolicyReplace, 100, 10, Deps{Completer: comp})
	if _, err := c.Ingest(context.Background(), docs("holding the lock")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Ask(context.Background(), "slow?")
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Ingest(ctx, docs("waiting for the lock"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	close(block)
	<-done
}

type countingStore struct {
	blobstore.Store
	reads     int
	existsErr error
}

func (s *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.Store.Exists(ctx, key)
}

func (s *countingStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.reads++
	return s.Store.Read(ctx, key)
}

func TestRestore_ChecksExistence(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		persist   bool
		existsErr error
		want      bool
		wantErr   bool
		wantReads int
	}{
		{name: "nothing persisted", want: false, wantReads: 0},
		{name: "persisted", persist: true, want: true, wantReads: 1},
		{name: "store unavailable", existsErr: errors.New("connection refused"), wantErr: true, wantReads: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newTestStore(t)
			if tt.persist {
				seed := newConversation(t, PolicyReplace, 200, 20, Deps{Store: base})
				if _, err := seed.Ingest(ctx, docs("a persisted knowledge base")); err != nil {
					t.Fatal(err)
				}
			}
			store := &countingStore{Store: base, existsErr: tt.existsErr}
			c := newConversation(t, PolicyReplace, 200, 20, Deps{Store: store})
			got, err := c.Restore(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Restore err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || c.Ready() != tt.want {
				t.Errorf("Restore = %v, Ready = %v, want %v", got, c.Ready(), tt.want)
			}
			if store.reads != tt.wantReads {
				t.Errorf("reads = %d, want %d", store.reads, tt.wantReads)
			}
		})
	}
}
