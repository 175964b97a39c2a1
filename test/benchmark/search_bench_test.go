package benchmark

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/tcmkb/internal/embedding"
	"github.com/hyperjump/tcmkb/internal/extract"
	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/search"
	"github.com/hyperjump/tcmkb/internal/vector"
)

func BenchmarkMergeResults(b *testing.B) {
	lists := make([][]*models.SearchResult, 4)
	for l := range lists {
		for i := 0; i < 50; i++ {
			lists[l] = append(lists[l], &models.SearchResult{
				ParagraphID: fmt.Sprintf("p-%d-%d", l, i),
				Score:       float64((i*7+l*13)%100) / 100,
			})
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = search.MergeResults(lists, 10)
	}
}

func BenchmarkCosineSimilarity(b *testing.B) {
	x := make([]float32, 768)
	y := make([]float32, 768)
	for i := range x {
		x[i] = float32(i%17) / 17
		y[i] = float32(i%13) / 13
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = vector.CosineSimilarity(x, y)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(768)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "太阳病，发热，汗出，恶风，脉缓者，名为中风。")
	}
}

func BenchmarkSegmentText(b *testing.B) {
	text := strings.Repeat("太阳之为病，脉浮，头项强痛而恶寒。", 200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = extract.SegmentText(text, extract.DefaultMaxLength, "伤寒论")
	}
}

func BenchmarkKeywordScore(b *testing.B) {
	tokens := vector.KeywordTokens("桂枝汤 发热 恶风")
	content := strings.Repeat("太阳中风，阳浮而阴弱，啬啬恶寒，淅淅恶风，翕翕发热，桂枝汤主之。", 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = vector.KeywordScore(tokens, content, "伤寒论")
	}
}
