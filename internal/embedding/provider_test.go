package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

// stubEmbedder records calls and can fail or return a wrong length.
type stubEmbedder struct {
	dim       int
	failOn    string
	wrongLen  bool
	batchFail bool
	calls     int
	lastInput string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	s.lastInput = text
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, errors.New("backend down")
	}
	n := s.dim
	if s.wrongLen {
		n = s.dim + 1
	}
	v := make([]float32, n)
	v[0] = float32(utf8.RuneCountInString(text))
	return v, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.batchFail {
		return nil, errors.New("batch not supported")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dim }
func (s *stubEmbedder) Close() error    { return nil }

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func TestProvider_truncatesLongInput(t *testing.T) {
	stub := &stubEmbedder{dim: 4}
	p := NewProvider("m", stub, 4)
	v := p.Embed(context.Background(), strings.Repeat("脉", 2500))
	if got := utf8.RuneCountInString(stub.lastInput); got != DefaultMaxInputChars {
		t.Errorf("backend saw %d runes, want %d", got, DefaultMaxInputChars)
	}
	if v[0] != DefaultMaxInputChars {
		t.Errorf("got %v", v)
	}
}

func TestProvider_errorYieldsZeroVector(t *testing.T) {
	p := NewProvider("m", &stubEmbedder{dim: 4, failOn: "坏"}, 4)
	v := p.Embed(context.Background(), "坏数据")
	if len(v) != 4 || !isZero(v) {
		t.Errorf("got %v, want zero vector of length 4", v)
	}
}

func TestProvider_wrongLengthYieldsZeroVector(t *testing.T) {
	p := NewProvider("m", &stubEmbedder{dim: 4, wrongLen: true}, 4)
	v := p.Embed(context.Background(), "脉浮")
	if len(v) != 4 || !isZero(v) {
		t.Errorf("got %v, want zero vector of length 4", v)
	}
}

func TestProvider_cacheReturnsIdenticalVector(t *testing.T) {
	stub := &stubEmbedder{dim: 4}
	p := NewProvider("m", stub, 4, WithCache(NewEmbeddingCache(8)))
	a := p.Embed(context.Background(), "咳嗽")
	b := p.Embed(context.Background(), "咳嗽")
	if stub.calls != 1 {
		t.Errorf("backend called %d times, want 1", stub.calls)
	}
	if &a[0] != &b[0] {
		t.Error("cached vector should be returned as is")
	}
}

func TestProvider_failuresAreNotCached(t *testing.T) {
	stub := &stubEmbedder{dim: 4, failOn: "坏"}
	p := NewProvider("m", stub, 4, WithCache(NewEmbeddingCache(8)))
	p.Embed(context.Background(), "坏")
	p.Embed(context.Background(), "坏")
	if stub.calls != 2 {
		t.Errorf("backend called %d times, want 2", stub.calls)
	}
}

func TestProvider_EmbedBatchFailureDegradesWithoutResend(t *testing.T) {
	stub := &stubEmbedder{dim: 4}
	p := NewProvider("m", stub, 4, WithCache(NewEmbeddingCache(8)))
	p.Embed(context.Background(), "发热")
	stub.calls = 0
	stub.batchFail = true

	out := p.EmbedBatch(context.Background(), []string{"发热", "坏", "脉浮紧"})
	if len(out) != 3 {
		t.Fatalf("got %d vectors", len(out))
	}
	if stub.calls != 0 {
		t.Errorf("backend called %d times after the batch failed, want 0", stub.calls)
	}
	if out[0][0] != 2 {
		t.Errorf("cached text should keep its vector: %v", out[0])
	}
	for _, i := range []int{1, 2} {
		if len(out[i]) != 4 || !isZero(out[i]) {
			t.Errorf("text %d: got %v, want zero vector", i, out[i])
		}
	}
}

func TestProvider_EmbedBatchWrongLengthPerText(t *testing.T) {
	stub := &stubEmbedder{dim: 4, wrongLen: true}
	p := NewProvider("m", stub, 4)
	out := p.EmbedBatch(context.Background(), []string{"发热", "脉浮紧"})
	for i, v := range out {
		if len(v) != 4 || !isZero(v) {
			t.Errorf("text %d: got %v, want zero vector", i, v)
		}
	}
}

func TestProvider_EmbedBatchUsesCache(t *testing.T) {
	stub := &stubEmbedder{dim: 4}
	p := NewProvider("m", stub, 4, WithCache(NewEmbeddingCache(8)))
	p.Embed(context.Background(), "发热")
	stub.calls = 0
	out := p.EmbedBatch(context.Background(), []string{"发热", "恶寒"})
	if stub.calls != 1 {
		t.Errorf("backend called %d times, want 1", stub.calls)
	}
	if out[0][0] != 2 || out[1][0] != 2 {
		t.Errorf("got %v", out)
	}
}
