package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"docchat/internal/domain"
)

// newServer fakes the embeddings endpoint. It answers in reverse order so the
// client has to place vectors by index.
func newServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(i + 1), 0, 0}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "test"})
	}))
}

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "sk-test")
	c, err := NewClient(Config{BaseURL: url + "/v1", APIKeyEnv: "TEST_EMBED_KEY", Model: "test", Dimension: 3, MaxInputChars: 20})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClient_EmbedBatchOrdersByIndex(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	defer srv.Close()
	c := newClient(t, srv.URL)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, v := range vecs {
		if math.Abs(v[0]-1) > 1e-9 {
			t.Errorf("vector %d not normalized: %v", i, v)
		}
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError)
	defer srv.Close()
	c := newClient(t, srv.URL)

	_, err := c.Embed(context.Background(), "a")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("err = %v, want embedding error", err)
	}
}

func TestClient_RejectsLongInput(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")
	_, err := c.Embed(context.Background(), "this input is longer than twenty characters")
	if !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("err = %v, want embedding error", err)
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY_MISSING", "")
	if _, err := NewClient(Config{APIKeyEnv: "TEST_EMBED_KEY_MISSING"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}
