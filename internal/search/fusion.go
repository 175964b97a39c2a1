// Package search serves retrieval over one or more knowledge bases.
package search

import (
	"sort"

	"github.com/hyperjump/tcmkb/internal/models"
)

// MergeResults combines per knowledge base result lists into one list sorted
// by descending score, truncated to k and ranked from 1. Ties keep the
// order of lists.
func MergeResults(lists [][]*models.SearchResult, k int) []*models.SearchResult {
	var all []*models.SearchResult
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if k >= 0 && len(all) > k {
		all = all[:k]
	}
	for i, r := range all {
		r.Rank = i + 1
	}
	if all == nil {
		return []*models.SearchResult{}
	}
	return all
}
