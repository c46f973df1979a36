package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var got openAIEmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization=%q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// out of order on purpose; index decides placement
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(srv.URL+"/", "sk-test", "text-embedding-3-small", 3)
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	want := [][]float32{{1, 0, 0}, {0, 1, 0}}
	if !reflect.DeepEqual(vecs, want) {
		t.Errorf("vectors=%v, want %v", vecs, want)
	}
	if !reflect.DeepEqual(got.Input, []string{"first", "second"}) || got.Dimensions != 3 {
		t.Errorf("request=%+v", got)
	}
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", "", "", 3); err == nil {
		t.Error("expected error for missing API key")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()
	e, err := NewOpenAIEmbedder(srv.URL, "k", "", 3)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err=%v, want the 429 status", err)
	}

	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	defer short.Close()
	e, _ = NewOpenAIEmbedder(short.URL, "k", "", 3)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var req ollamaEmbedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model=%q, want the default", req.Model)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embedding: []float64{0.5, 0.5}})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(srv.URL, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || !reflect.DeepEqual(vecs[1], []float32{0.5, 0.5}) {
		t.Errorf("vectors=%v", vecs)
	}
}

func TestOllamaEmbedder_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	e, _ := NewOllamaEmbedder(srv.URL, "m", 2)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected error for a 500")
	}
}

func TestNew(t *testing.T) {
	e, err := New(Options{Provider: ProviderMock, Dimensions: 32, CacheSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("got %T, want *CachedEmbedder", e)
	}
	if e.Dimensions() != 32 {
		t.Errorf("dimensions=%d", e.Dimensions())
	}

	e, err = New(Options{Dimensions: 8})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*MockEmbedder); !ok {
		t.Errorf("got %T, want *MockEmbedder", e)
	}

	if _, err := New(Options{Provider: "word2vec", Dimensions: 8}); err == nil {
		t.Error("expected error for unknown provider")
	}

	t.Setenv("MEISHI_TEST_KEY", "")
	if _, err := New(Options{Provider: ProviderOpenAI, APIKeyEnv: "MEISHI_TEST_KEY", Dimensions: 8}); err == nil {
		t.Error("expected error for empty openai API key")
	}
	if _, err := New(Options{Provider: ProviderGemini, APIKeyEnv: "MEISHI_TEST_KEY", Dimensions: 8}); err == nil {
		t.Error("expected error for empty gemini API key")
	}

	e, err = New(Options{Provider: ProviderGemini, Dimensions: 8, GeminiModels: &fakeGeminiModels{}})
	if err != nil {
		t.Fatalf("New(gemini): %v", err)
	}
	g, ok := e.(*GeminiEmbedder)
	if !ok {
		t.Fatalf("got %T, want *GeminiEmbedder", e)
	}
	if g.model != DefaultGeminiModel {
		t.Errorf("model=%q, want %q", g.model, DefaultGeminiModel)
	}
}
