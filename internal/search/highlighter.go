package search

import (
	"strings"

	"github.com/hyperjump/tcmkb/pkg/utils"
)

// Preview returns content on one line, cut to maxRunes characters with "..." when longer.
func Preview(content string, maxRunes int) string {
	return utils.Truncate(strings.Join(strings.Fields(content), " "), maxRunes)
}
