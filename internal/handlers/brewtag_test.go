package handlers

import (
	"errors"
	"testing"

	"github.com/redhatci/kaijs/internal/types"
)

func TestBrewTagHandlerRPMBuildGateTag(t *testing.T) {
	h := NewBrewTagHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.brew.build.tag", map[string]any{
		"tag": map[string]any{"name": "rhel-9.3.0-gate"},
		"build": map[string]any{
			"task_id":    "555",
			"name":       "curl",
			"version":    "8.0",
			"release":    "1.el9",
			"owner_name": "releng",
		},
		"run": map[string]any{"url": "https://example.com/run/4"},
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.Type != types.ArtifactKojiBuild {
		t.Fatalf("unexpected artifact type: %q", result.Identity.Type)
	}
	if result.Identity.ID != "555" {
		t.Fatalf("unexpected artifact id: %q", result.Identity.ID)
	}
}

func TestBrewTagHandlerModuleBuildGateTag(t *testing.T) {
	h := NewBrewTagHandler(fixedResolver)
	env := envelope("org.centos.prod.brew.build.tag", map[string]any{
		"tag": map[string]any{"name": "rhel-8.9-modules-gate"},
		"build": map[string]any{
			"name":    "postgresql",
			"version": "13",
			"release": "1",
			"extra": map[string]any{
				"typeinfo": map[string]any{
					"module": map[string]any{"module_build_service_id": "9001"},
				},
			},
		},
		"run": map[string]any{"url": "https://example.com/run/5"},
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.Type != types.ArtifactRedHatModule {
		t.Fatalf("unexpected artifact type: %q", result.Identity.Type)
	}
	if result.Identity.ID != "9001" {
		t.Fatalf("unexpected artifact id: %q", result.Identity.ID)
	}
}

func TestBrewTagHandlerRejectsNonGateTag(t *testing.T) {
	h := NewBrewTagHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.brew.build.tag", map[string]any{
		"tag":   map[string]any{"name": "f33-updates-candidate"},
		"build": map[string]any{"task_id": "1"},
	})

	_, err := h.HandleDoc(env)
	var noNeed *types.NoNeedToProcessError
	if !errors.As(err, &noNeed) {
		t.Fatalf("expected NoNeedToProcessError, got %v", err)
	}
}
