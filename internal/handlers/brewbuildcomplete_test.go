package handlers

import (
	"errors"
	"testing"

	"github.com/redhatci/kaijs/internal/types"
)

func TestBrewBuildCompleteHandlerContainerBuild(t *testing.T) {
	h := NewBrewBuildCompleteHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.brew.build.complete", map[string]any{
		"info": map[string]any{
			"build_id":   "42",
			"task_id":    "43",
			"name":       "myapp",
			"version":    "1.0",
			"release":    "2",
			"owner_name": "someone",
			"extra": map[string]any{
				"osbs_build": map[string]any{"kind": "container_build", "id": "osbs-1"},
			},
		},
		"run": map[string]any{"url": "https://example.com/run/6"},
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.Type != types.ArtifactRedHatContainer {
		t.Fatalf("unexpected artifact type: %q", result.Identity.Type)
	}
	if result.Identity.ID != "42" {
		t.Fatalf("unexpected artifact id: %q", result.Identity.ID)
	}
}

func TestBrewBuildCompleteHandlerNonContainerDropped(t *testing.T) {
	h := NewBrewBuildCompleteHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.brew.build.complete", map[string]any{
		"info": map[string]any{
			"build_id": "42",
			"extra":    map[string]any{"osbs_build": map[string]any{"kind": "rpm_build"}},
		},
	})

	_, err := h.HandleDoc(env)
	var noNeed *types.NoNeedToProcessError
	if !errors.As(err, &noNeed) {
		t.Fatalf("expected NoNeedToProcessError, got %v", err)
	}
}
