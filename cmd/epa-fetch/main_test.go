package main

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_STRING_VAR", "set")
	if got := getEnv("TEST_STRING_VAR", "default"); got != "set" {
		t.Errorf("getEnv() = %q, want set", got)
	}
	if got := getEnv("TEST_STRING_VAR_MISSING", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "12")
	if got := getEnvInt("TEST_INT_VAR", 5); got != 12 {
		t.Errorf("getEnvInt() = %d, want 12", got)
	}
	if got := getEnvInt("TEST_INT_VAR_MISSING", 5); got != 5 {
		t.Errorf("getEnvInt() = %d, want 5", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL_VAR", "true")
	if !getEnvBool("TEST_BOOL_VAR", false) {
		t.Error("getEnvBool() = false, want true")
	}
	if getEnvBool("TEST_BOOL_VAR_MISSING", false) {
		t.Error("getEnvBool() = true, want default false")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_VAR", "90s")
	if got := getEnvDuration("TEST_DURATION_VAR", time.Hour); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_DURATION_VAR_MISSING", time.Hour); got != time.Hour {
		t.Errorf("getEnvDuration() = %v, want 1h", got)
	}
}
