package utils

import "testing"

func TestTFallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
	if got := T("zh", "no.such.key"); got != "no.such.key" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}

func TestTF(t *testing.T) {
	if got := TF("zh", "error.wrong_day", 3); got != "测试天数不匹配，应提交第 3 天" {
		t.Fatalf("unexpected message: %s", got)
	}
	if got := TF("en", "error.invalid_field", "userId"); got != "invalid field: userId" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	for key := range translations["en"] {
		if _, ok := translations["zh"][key]; !ok {
			t.Fatalf("zh missing %s", key)
		}
	}
	for key := range translations["zh"] {
		if _, ok := translations["en"][key]; !ok {
			t.Fatalf("en missing %s", key)
		}
	}
}
