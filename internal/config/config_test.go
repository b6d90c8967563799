package config

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "45")
	if got := Int("CFG_TEST_INT", 10); got != 45 {
		t.Fatalf("expected 45, got %d", got)
	}
	t.Setenv("CFG_TEST_INT", "nope")
	if got := Int("CFG_TEST_INT", 10); got != 10 {
		t.Fatalf("expected fallback 10, got %d", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("CFG_TEST_DUR", "90s")
	if got := Duration("CFG_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	t.Setenv("CFG_TEST_DUR", "-5s")
	if got := Duration("CFG_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback 1m, got %s", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("CFG_TEST_PORT", "8080")
	if got, err := Port("CFG_TEST_PORT", "80"); err != nil || got != "8080" {
		t.Fatalf("expected 8080, got %q err %v", got, err)
	}
	t.Setenv("CFG_TEST_PORT", "70000")
	if _, err := Port("CFG_TEST_PORT", "80"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("CFG_TEST_REQ", "")
	if _, err := RequiredString("CFG_TEST_REQ"); err == nil {
		t.Fatal("expected error for empty required var")
	}
}
