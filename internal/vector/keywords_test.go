package vector

import (
	"reflect"
	"testing"
)

func TestKeywordTokens(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"咳嗽", []string{"咳嗽"}},
		{"发热, 咳嗽！发热", []string{"发热", "咳嗽"}},
		{"Cough and cough", []string{"Cough", "and", "cough"}},
		{"snake_case 42", []string{"snake_case", "42"}},
		{"，。！", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := KeywordTokens(tt.query)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("KeywordTokens(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name           string
		tokens         []string
		content, title string
		want           float64
	}{
		{"all in content", []string{"咳嗽"}, "咳嗽三天", "", 1},
		{"half", []string{"发热", "咳嗽"}, "发热恶寒", "", 0.5},
		{"title counts", []string{"伤寒"}, "太阳病", "伤寒论", 1},
		{"case insensitive", []string{"COUGH"}, "dry cough", "", 1},
		{"none", []string{"头痛"}, "咳嗽", "病案", 0},
		{"no tokens", nil, "咳嗽", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeywordScore(tt.tokens, tt.content, tt.title); got != tt.want {
				t.Errorf("KeywordScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLikePattern(t *testing.T) {
	if got := likePattern("a_b%"); got != `%a\_b\%%` {
		t.Errorf("likePattern = %q", got)
	}
}
