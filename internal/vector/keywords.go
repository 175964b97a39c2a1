package vector

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}\p{M}_]+`)

// KeywordTokens returns the distinct word runs of query, in order of first appearance.
func KeywordTokens(query string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(query, -1) {
		if seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// KeywordScore returns the fraction of tokens contained case-insensitively
// in content or title.
func KeywordScore(tokens []string, content, title string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	content = strings.ToLower(content)
	title = strings.ToLower(title)
	matches := 0
	for _, t := range tokens {
		t = strings.ToLower(t)
		if strings.Contains(content, t) || strings.Contains(title, t) {
			matches++
		}
	}
	return float64(matches) / float64(len(tokens))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern returns a substring LIKE pattern for token using backslash escapes.
func likePattern(token string) string {
	return "%" + likeEscaper.Replace(token) + "%"
}
