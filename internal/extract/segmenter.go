package extract

import "strings"

// DefaultMaxLength is the paragraph bound used by every extractor.
const DefaultMaxLength = 1000

// Segment is one bounded paragraph of a longer text.
type Segment struct {
	Content string
	Title   string
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', ';', '；', '\n':
		return true
	}
	return false
}

// SegmentText splits text into paragraphs of at most maxLength runes plus one
// terminator. Paragraphs end at sentence punctuation or a newline; the longest
// run that fits is preferred. Text with no boundary inside the bound is hard
// wrapped at maxLength runes. Every segment carries title.
func SegmentText(text string, maxLength int, title string) []Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	r := []rune(text)

	var out []Segment
	emit := func(s []rune) {
		if c := strings.TrimSpace(string(s)); c != "" {
			out = append(out, Segment{Content: c, Title: title})
		}
	}

	prev := 0
	for prev < len(r) {
		start, end, ok := nextBoundedSentence(r, prev, maxLength)
		if !ok {
			break
		}
		if end-prev > maxLength+1 {
			wrapRunes(r[prev:start], maxLength, emit)
			emit(r[start:end])
		} else {
			emit(r[prev:end])
		}
		prev = end
	}
	if prev < len(r) {
		wrapRunes(r[prev:], maxLength, emit)
	}
	return out
}

// nextBoundedSentence finds the leftmost run of 1..maxLength non-newline runes
// at or after from that is followed by a terminator, extended to the farthest
// such terminator. It returns the half-open range including the terminator.
func nextBoundedSentence(r []rune, from, maxLength int) (int, int, bool) {
	n := len(r)
	start := from
	for start < n {
		if r[start] == '\n' {
			start++
			continue
		}
		t := -1
		for i := start + 1; i < n; i++ {
			if isTerminator(r[i]) {
				t = i
				break
			}
		}
		if t < 0 {
			return 0, 0, false
		}
		if t-start > maxLength {
			// No start before t-maxLength can reach a terminator in time.
			start = t - maxLength
			continue
		}
		end := t
		for u := t + 1; u <= start+maxLength && u < n; u++ {
			if r[u-1] == '\n' {
				break
			}
			if isTerminator(r[u]) {
				end = u
			}
		}
		return start, end + 1, true
	}
	return 0, 0, false
}

// wrapRunes emits r in windows of at most maxLength runes.
func wrapRunes(r []rune, maxLength int, emit func([]rune)) {
	for len(r) > 0 {
		n := maxLength
		if n > len(r) {
			n = len(r)
		}
		emit(r[:n])
		r = r[n:]
	}
}
