package extract

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

func contents(segs []Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.Content
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestSegmentText(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLength int
		want      []string
	}{
		{"empty", "", 10, nil},
		{"whitespace only", " \n\t ", 10, nil},
		{"two sentences", "发热，咳嗽三天。舌苔薄白，脉浮。", 10, []string{"发热，咳嗽三天。", "舌苔薄白，脉浮。"}},
		{"greedy within bound", "恶寒。发热。", 10, []string{"恶寒。发热。"}},
		{"newline terminates", "太阳病\n脉浮", 10, []string{"太阳病", "脉浮"}},
		{"no terminator short", "桂枝汤", 10, []string{"桂枝汤"}},
		{"ascii punctuation", "Fever? Cough! Rest;", 8, []string{"Fever?", "Cough!", "Rest;"}},
		{"remainder after match", "头痛。项强而恶寒", 10, []string{"头痛。", "项强而恶寒"}},
		{"long run hard wrapped", "一二三四五六七八九十甲乙丙。", 5, []string{"一二三四五", "六七八", "九十甲乙丙。"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contents(SegmentText(tt.text, tt.maxLength, "t"))
			if !equalStrings(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegmentText_title(t *testing.T) {
	segs := SegmentText("脉浮。", 10, "第1页")
	if len(segs) != 1 || segs[0].Title != "第1页" {
		t.Errorf("got %+v", segs)
	}
}

func TestSegmentText_boundAndCoverage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("伤寒论辨太阳病脉证并治上篇第一")
	}
	b.WriteString("。\n\n")
	for i := 0; i < 30; i++ {
		b.WriteString("太阳之为病，脉浮，头项强痛而恶寒。")
	}
	b.WriteString("\n尾声没有标点")
	text := b.String()

	for _, maxLength := range []int{1, 7, 50, 1000} {
		segs := SegmentText(text, maxLength, "")
		if len(segs) == 0 {
			t.Fatalf("max %d: no segments", maxLength)
		}
		var joined strings.Builder
		for _, s := range segs {
			if n := utf8.RuneCountInString(s.Content); n > maxLength+1 {
				t.Errorf("max %d: segment of %d runes", maxLength, n)
			}
			joined.WriteString(s.Content)
		}
		if stripSpace(joined.String()) != stripSpace(text) {
			t.Errorf("max %d: segments do not reproduce the input", maxLength)
		}
	}
}

func TestSegmentText_defaultMaxLength(t *testing.T) {
	text := strings.Repeat("气", 2500)
	segs := SegmentText(text, 0, "")
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	if utf8.RuneCountInString(segs[0].Content) != DefaultMaxLength {
		t.Errorf("first segment has %d runes", utf8.RuneCountInString(segs[0].Content))
	}
}
