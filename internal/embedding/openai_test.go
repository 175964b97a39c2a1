package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newEmbeddingServer(t *testing.T, dim int, reverse bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, text := range req.Input {
			v := make([]float32, dim)
			v[0] = float32(len([]rune(text)))
			data[i] = item{Object: "embedding", Embedding: v, Index: i}
		}
		if reverse {
			for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
				data[i], data[j] = data[j], data[i]
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := newEmbeddingServer(t, 8, true)
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "bge-m3", Dimensions: 8})
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.EmbedBatch(context.Background(), []string{"脉", "脉浮", "脉浮紧"})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float32{1, 2, 3} {
		if out[i][0] != want {
			t.Errorf("vector %d: got %v, want first component %v", i, out[i], want)
		}
	}
	v, err := e.Embed(context.Background(), "咳嗽")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 8 || v[0] != 2 {
		t.Errorf("got %v", v)
	}
}

func TestOpenAIEmbedder_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded","type":"server_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, Model: "m", Dimensions: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "咳嗽"); err == nil {
		t.Error("expected error from failing server")
	}
	// Through the provider the failure degrades to a zero vector.
	p := NewProvider("m", e, 4)
	if v := p.Embed(context.Background(), "咳嗽"); len(v) != 4 || !isZero(v) {
		t.Errorf("got %v", v)
	}
}

func TestNewOpenAIEmbedder_validation(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIConfig{Dimensions: 4}); err == nil {
		t.Error("expected error without model")
	}
	if _, err := NewOpenAIEmbedder(OpenAIConfig{Model: "m"}); err == nil {
		t.Error("expected error without dimensions")
	}
}
