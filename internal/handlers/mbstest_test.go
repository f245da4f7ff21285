package handlers

import (
	"testing"

	"github.com/redhatci/kaijs/internal/types"
)

func TestMBSTestHandlerRedHatContext(t *testing.T) {
	h := NewMBSTestHandler(fixedResolver)
	env := envelope("VirtualTopic.eng.ci.osci.redhat-module.test.complete", map[string]any{
		"artifact": map[string]any{
			"id":        "2001",
			"nsvc":      "postgresql:13:20230101:c1",
			"component": "postgresql",
			"issuer":    "packager",
		},
		"run":  map[string]any{"url": "https://example.com/run/7"},
		"test": map[string]any{"namespace": "osci", "type": "tier1", "category": "functional"},
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.Type != types.ArtifactRedHatModule {
		t.Fatalf("unexpected artifact type: %q", result.Identity.Type)
	}
	if result.Identity.ID != "2001" {
		t.Fatalf("unexpected artifact id: %q", result.Identity.ID)
	}
}

func TestMBSTestHandlerFedoraContext(t *testing.T) {
	h := NewMBSTestHandler(fixedResolver)
	env := envelope("org.centos.prod.ci.fedora-module.test.complete", map[string]any{
		"artifact": map[string]any{"id": "3001", "component": "nodejs"},
		"run":      map[string]any{"url": "https://example.com/run/8"},
		"test":     map[string]any{"namespace": "fedora-ci", "type": "tier1", "category": "functional"},
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.Type != types.ArtifactFedoraModule {
		t.Fatalf("unexpected artifact type: %q", result.Identity.Type)
	}
}

func TestMBSTestHandlerRejectsInvalidIssuer(t *testing.T) {
	h := NewMBSTestHandler(fixedResolver)
	env := envelope("org.centos.prod.ci.fedora-module.test.complete", map[string]any{
		"artifact": map[string]any{"id": "3002", "issuer": "freshmaker-bot"},
		"run":      map[string]any{"url": "https://example.com/run/9"},
	})

	if _, err := h.HandleDoc(env); err == nil {
		t.Fatalf("expected validation error for freshmaker issuer")
	}
}

func TestMBSTestHandlerMissingIDFails(t *testing.T) {
	h := NewMBSTestHandler(fixedResolver)
	env := envelope("org.centos.prod.ci.fedora-module.test.complete", map[string]any{})
	if _, err := h.HandleDoc(env); err == nil {
		t.Fatalf("expected error for missing artifact id")
	}
}
