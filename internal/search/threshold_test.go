package search

import (
	"math"
	"testing"

	"github.com/hyperjump/tcmkb/internal/models"
)

func results(t models.SearchType, scores ...float64) []*models.SearchResult {
	out := make([]*models.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = &models.SearchResult{Score: s, SearchType: t, Rank: i + 1}
	}
	return out
}

func TestDynamicThreshold(t *testing.T) {
	tests := []struct {
		name    string
		results []*models.SearchResult
		base    float64
		want    float64
	}{
		{"empty keeps base", nil, 0.5, 0.5},
		{"embedding above base", results(models.SearchTypeEmbedding, 0.9, 0.7), 0.5, 0.5},
		{"keywords relax", results(models.SearchTypeKeywords, 1.0, 0.5), 0.5, 0.4},
		{"lexical floor", results(models.SearchTypeBlend, 0.9, 0.8), 0.3, 0.3},
		{"low average falls to max score", results(models.SearchTypeBlend, 0.5, 0.3), 0.9, 0.4},
		{"hard floor", results(models.SearchTypeEmbedding, 0.1, 0.05), 0.5, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DynamicThreshold(tt.results, tt.base)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DynamicThreshold = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterByThreshold(t *testing.T) {
	in := results(models.SearchTypeEmbedding, 0.9, 0.2, 0.6)
	got := FilterByThreshold(in, 0.5)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Score != 0.9 || got[1].Score != 0.6 || got[1].Rank != 2 {
		t.Errorf("got %+v %+v", got[0], got[1])
	}

	// Nothing passes the 0.2 floor: no fallback to the unfiltered list.
	low := results(models.SearchTypeEmbedding, 0.1, 0.05)
	if got := FilterByThreshold(low, DynamicThreshold(low, 0.5)); len(got) != 0 {
		t.Errorf("got %d results below the floor", len(got))
	}
}
