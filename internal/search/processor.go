package search

import "github.com/hyperjump/tcmkb/internal/models"

// ProcessQuery validates req and fills TopK and SearchType from kb.
// TopK is capped at maxTopK when maxTopK is positive.
func ProcessQuery(req *models.SearchRequest, kb *models.KnowledgeBase, maxTopK int) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.TopK == 0 {
		req.TopK = kb.TopK
	}
	if maxTopK > 0 && req.TopK > maxTopK {
		req.TopK = maxTopK
	}
	if req.SearchType == "" {
		req.SearchType = kb.SearchType
	}
	return nil
}
