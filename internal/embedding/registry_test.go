package embedding

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hyperjump/tcmkb/internal/config"
)

func TestBuildRegistry(t *testing.T) {
	cfg := config.EmbeddingConfig{
		CacheSize: 16,
		Models: []config.ModelConfig{
			{Name: "mock-768", Type: config.EmbedderMock, Dimensions: 768},
			{Name: "bge-m3", Type: config.EmbedderOpenAI, Dimensions: 1024, BaseURL: "http://127.0.0.1:1/v1"},
		},
	}
	r, err := BuildRegistry(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if got := r.Models(); !reflect.DeepEqual(got, []string{"bge-m3", "mock-768"}) {
		t.Errorf("Models: got %v", got)
	}
	p, err := r.Lookup("mock-768")
	if err != nil {
		t.Fatal(err)
	}
	if p.Dimensions() != 768 || p.Model() != "mock-768" {
		t.Errorf("unexpected provider %s/%d", p.Model(), p.Dimensions())
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry(NewProvider("a", NewMockEmbedder(4), 4))
	_, err := r.Lookup("shibing624/text2vec-base-chinese")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("got %v, want ErrModelNotFound", err)
	}
}

func TestBuildRegistry_badBackend(t *testing.T) {
	cfg := config.EmbeddingConfig{Models: []config.ModelConfig{
		{Name: "ok", Type: config.EmbedderMock, Dimensions: 4},
		{Name: "bad", Type: "bert", Dimensions: 4},
	}}
	if _, err := BuildRegistry(cfg, nil); err == nil {
		t.Error("expected error for unknown backend type")
	}
}
