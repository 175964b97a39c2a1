package vector

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrInvalidKnowledgeBaseID is returned when a knowledge base id is not a UUID.
var ErrInvalidKnowledgeBaseID = errors.New("invalid knowledge base id")

// ValidateKnowledgeBaseID parses id as a UUID and returns its canonical form,
// which is safe to splice into index DDL.
func ValidateKnowledgeBaseID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidKnowledgeBaseID, id, err)
	}
	return u.String(), nil
}

// IndexName returns the name of the per knowledge base embedding index.
func IndexName(kbID string) string {
	return "tcm_embedding_idx_" + kbID
}

// ListsForRowCount returns the ivfflat list count for n rows.
func ListsForRowCount(n int64) int {
	switch {
	case n < 1000:
		return 100
	case n < 10000:
		return 200
	}
	lists := int(math.Sqrt(float64(n)))
	if lists > 1000 {
		lists = 1000
	}
	return lists
}
