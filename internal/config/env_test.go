package config

import (
	"testing"
	"time"
)

func TestDurationBareSeconds(t *testing.T) {
	t.Setenv("TEST_INTERVAL", "300")
	if got := Duration("TEST_INTERVAL", time.Minute); got != 300*time.Second {
		t.Fatalf("bare integer must parse as seconds, got %v", got)
	}
}

func TestDurationGoSyntax(t *testing.T) {
	t.Setenv("TEST_INTERVAL", "2m30s")
	if got := Duration("TEST_INTERVAL", time.Minute); got != 150*time.Second {
		t.Fatalf("duration syntax not honored, got %v", got)
	}
}

func TestDurationInvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_INTERVAL", "soon")
	if got := Duration("TEST_INTERVAL", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("invalid value must fall back, got %v", got)
	}
	t.Setenv("TEST_INTERVAL", "-10")
	if got := Duration("TEST_INTERVAL", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("non-positive value must fall back, got %v", got)
	}
}

func TestRequireUnset(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "")
	if _, err := Require("TEST_REQUIRED"); err == nil {
		t.Fatal("expected an error for unset variable")
	}
}

func TestStringTrims(t *testing.T) {
	t.Setenv("TEST_STRING", "  value  ")
	if got := String("TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}
