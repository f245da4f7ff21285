package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kaijs.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadNoOverrideUsesEmbeddedDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Broker.Provider != "umb" {
		t.Errorf("expected default broker provider umb, got %q", cfg.Broker.Provider)
	}
	if cfg.Spool.Dir != "/var/lib/kaijs/spool" {
		t.Errorf("expected default spool dir, got %q", cfg.Spool.Dir)
	}
	if cfg.Loader.PollInterval.Duration != 500*time.Millisecond {
		t.Errorf("expected default poll interval 500ms, got %v", cfg.Loader.PollInterval.Duration)
	}
	if cfg.SearchIndex.IndexPrefix != "kaijs" {
		t.Errorf("expected default index prefix kaijs, got %q", cfg.SearchIndex.IndexPrefix)
	}
	if len(cfg.SearchIndex.Addresses) != 1 || cfg.SearchIndex.Addresses[0] != "http://localhost:9200" {
		t.Errorf("expected one default search-index address, got %v", cfg.SearchIndex.Addresses)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("KAIJS_BROKER_PROVIDER", "rabbitmq")
	t.Setenv("KAIJS_SPOOL_DIR", "/tmp/custom-spool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Broker.Provider != "rabbitmq" {
		t.Errorf("expected env-overridden provider rabbitmq, got %q", cfg.Broker.Provider)
	}
	if cfg.Spool.Dir != "/tmp/custom-spool" {
		t.Errorf("expected env-overridden spool dir, got %q", cfg.Spool.Dir)
	}
}

func TestLoadFileOverridesMergeOverDefaults(t *testing.T) {
	path := writeTemp(t, `
docstore:
  database: "kaijs-staging"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Docstore.Database != "kaijs-staging" {
		t.Errorf("expected overridden database, got %q", cfg.Docstore.Database)
	}
	// Fields the override file doesn't mention keep their embedded default.
	if cfg.Docstore.URI != "mongodb://localhost:27017" {
		t.Errorf("expected default docstore URI preserved, got %q", cfg.Docstore.URI)
	}
	if cfg.Broker.Provider != "umb" {
		t.Errorf("expected default broker provider preserved, got %q", cfg.Broker.Provider)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/kaijs.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadDurationParsesSuffixedStrings(t *testing.T) {
	path := writeTemp(t, `
listener:
  liveness_period: "30s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listener.LivenessPeriod.Duration != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Listener.LivenessPeriod.Duration)
	}
}
