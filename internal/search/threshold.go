package search

import "github.com/hyperjump/tcmkb/internal/models"

// Dynamic threshold bounds.
const (
	RelaxFactor    = 0.8
	LexicalFloor   = 0.3
	ThresholdFloor = 0.2
)

// DynamicThreshold returns the effective threshold for results given base.
// Keyword or blend hits lower it to max(0.8*base, 0.3). If the average score
// is still below, it drops to max(0.8*max score, 0.2). 0.2 is never crossed.
func DynamicThreshold(results []*models.SearchResult, base float64) float64 {
	if len(results) == 0 {
		return base
	}
	t := base
	var sum, top float64
	lexical := false
	for i, r := range results {
		if r.SearchType == models.SearchTypeKeywords || r.SearchType == models.SearchTypeBlend {
			lexical = true
		}
		sum += r.Score
		if i == 0 || r.Score > top {
			top = r.Score
		}
	}
	if lexical {
		t = max(base*RelaxFactor, LexicalFloor)
	}
	if sum/float64(len(results)) < t {
		t = max(top*RelaxFactor, ThresholdFloor)
	}
	return t
}

// FilterByThreshold keeps results scoring at least threshold and renumbers their ranks.
func FilterByThreshold(results []*models.SearchResult, threshold float64) []*models.SearchResult {
	out := make([]*models.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			r.Rank = len(out) + 1
			out = append(out, r)
		}
	}
	return out
}
