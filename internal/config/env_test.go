package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "LIVECHART_TEST_PLAIN")
	unsetEnv(t, "LIVECHART_TEST_QUOTED")
	unsetEnv(t, "LIVECHART_TEST_SINGLE")
	path := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# comment\n" +
		"LIVECHART_TEST_PLAIN=bar\n" +
		"LIVECHART_TEST_QUOTED=\"baz\"\n" +
		"LIVECHART_TEST_SINGLE='qux'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	for key, want := range map[string]string{
		"LIVECHART_TEST_PLAIN":  "bar",
		"LIVECHART_TEST_QUOTED": "baz",
		"LIVECHART_TEST_SINGLE": "qux",
	} {
		if got := os.Getenv(key); got != want {
			t.Fatalf("%s expected %q, got %q", key, want, got)
		}
	}
}

func TestLoadEnvDoesNotOverrideExisting(t *testing.T) {
	t.Setenv("LIVECHART_TEST_PLAIN", "existing")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LIVECHART_TEST_PLAIN=bar\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := LoadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("LIVECHART_TEST_PLAIN"); got != "existing" {
		t.Fatalf("expected existing, got %q", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if old, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { _ = os.Setenv(key, old) })
	} else {
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}
	_ = os.Unsetenv(key)
}
