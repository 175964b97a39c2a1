package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("舌苔薄白，脉浮", 4); got != "舌苔薄白..." {
		t.Errorf("got %s", got)
	}
}

func TestRuneLen(t *testing.T) {
	if n := RuneLen("咳嗽ab"); n != 4 {
		t.Errorf("got %d", n)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("发热咳嗽", 2); got != "发热" {
		t.Errorf("got %s", got)
	}
	if got := TruncateRunes("发热", 5); got != "发热" {
		t.Errorf("got %s", got)
	}
	if got := TruncateRunes("发热", -1); got != "" {
		t.Errorf("got %s", got)
	}
}
