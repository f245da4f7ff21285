package config

import "testing"

func TestExpandEnvSetVar(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")
	if got := ExpandEnv("value: ${TEST_VAR}"); got != "value: hello" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnvUnsetVar(t *testing.T) {
	if got := ExpandEnv("value: ${UNSET_VAR_12345}"); got != "value: " {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnvDefaultUsedWhenUnset(t *testing.T) {
	if got := ExpandEnv("value: ${UNSET_VAR_12345:-fallback}"); got != "value: fallback" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnvDefaultIgnoredWhenSet(t *testing.T) {
	t.Setenv("TEST_VAR", "real")
	if got := ExpandEnv("value: ${TEST_VAR:-fallback}"); got != "value: real" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnvDefaultUsedWhenEmpty(t *testing.T) {
	t.Setenv("TEST_VAR", "")
	if got := ExpandEnv("value: ${TEST_VAR:-fallback}"); got != "value: fallback" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnvMultipleVars(t *testing.T) {
	t.Setenv("KAIJS_A", "alice")
	t.Setenv("KAIJS_B", "bob")
	if got := ExpandEnv("${KAIJS_A}:${KAIJS_B}"); got != "alice:bob" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnvNoVars(t *testing.T) {
	input := "no variables here"
	if got := ExpandEnv(input); got != input {
		t.Errorf("got %q", got)
	}
}
