package handlers

import (
	"testing"

	"github.com/redhatci/kaijs/internal/buildsys"
	"github.com/redhatci/kaijs/internal/buildsys/buildsystest"
	"github.com/redhatci/kaijs/internal/types"
)

func fixedResolver(ctx types.SearchContext, artifactType types.ArtifactType) string {
	return "kaijs-" + string(ctx) + "-" + string(artifactType)
}

// TestBuildsysTagHandlerScenarioS1 implements the "buildsys.tag -> brew-build
// upsert" scenario: topic org.fedoraproject.prod.buildsys.tag, a tag event
// body carrying no pipeline.id/thread_id/run.url anchor at all, and a
// stubbed getBuild reply, expecting a koji-build artifact keyed by the
// returned task id.
func TestBuildsysTagHandlerScenarioS1(t *testing.T) {
	stub := buildsystest.NewStubClient()
	stub.SetReply(1728223, buildsys.BuildInfo{
		TaskID: 111,
		NVR:    "gcompris-qt-1.1-1.fc33",
		Extra:  map[string]any{"source": map[string]any{"original_url": "git://example.com/gcompris-qt"}},
	})

	h := NewBuildsysTagHandler(stub, fixedResolver)
	env := envelope("org.fedoraproject.prod.buildsys.tag", map[string]any{
		"build_id": float64(1728223),
		"tag":      "f33-updates",
		"owner":    "bodhi",
		"name":     "gcompris-qt",
		"version":  "1.1",
		"release":  "1.fc33",
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.Type != types.ArtifactKojiBuild {
		t.Fatalf("unexpected artifact type: %q", result.Identity.Type)
	}
	if result.Identity.ID != "111" {
		t.Fatalf("unexpected artifact id: %q", result.Identity.ID)
	}

	payload, ok := result.Payload.(types.RPMBuildPayload)
	if !ok {
		t.Fatalf("unexpected payload type: %T", result.Payload)
	}
	want := types.RPMBuildPayload{
		TaskID:    "111",
		BuildID:   "1728223",
		NVR:       "gcompris-qt-1.1-1.fc33",
		Issuer:    "bodhi",
		Component: "gcompris-qt",
		Scratch:   false,
	}
	if payload != want {
		t.Fatalf("unexpected payload: %+v, want %+v", payload, want)
	}
}

func TestBuildsysTagHandlerRejectsIncompleteReply(t *testing.T) {
	stub := buildsystest.NewStubClient()
	stub.SetReply(42, buildsys.BuildInfo{TaskID: 0, NVR: ""})

	h := NewBuildsysTagHandler(stub, fixedResolver)
	env := envelope("org.centos.prod.buildsys.tag", map[string]any{
		"build_id": float64(42),
		"name":     "foo",
		"owner":    "bar",
	})

	if _, err := h.HandleDoc(env); err == nil {
		t.Fatalf("expected error for incomplete getBuild reply")
	}
}

func TestBuildsysTagHandlerCachesEnrichAcrossDocAndIndex(t *testing.T) {
	stub := buildsystest.NewStubClient()
	stub.SetReply(1728223, buildsys.BuildInfo{
		TaskID: 111,
		NVR:    "gcompris-qt-1.1-1.fc33",
	})

	h := NewBuildsysTagHandler(stub, fixedResolver)
	env := envelope("org.fedoraproject.prod.buildsys.tag", map[string]any{
		"build_id": float64(1728223),
		"tag":      "f33-updates",
		"owner":    "bodhi",
		"name":     "gcompris-qt",
		"version":  "1.1",
		"release":  "1.fc33",
	})
	env.SpoolID = "1700000000-msg-1"

	if _, err := h.HandleDoc(env); err != nil {
		t.Fatalf("HandleDoc: unexpected error: %v", err)
	}
	if _, err := h.HandleIndex(env); err != nil {
		t.Fatalf("HandleIndex: unexpected error: %v", err)
	}

	if calls := stub.Calls(); len(calls) != 1 {
		t.Fatalf("expected exactly one getBuild call across HandleDoc+HandleIndex, got %d: %v", len(calls), calls)
	}
}

func TestBuildsysTagHandlerCentosContextUsesCSType(t *testing.T) {
	stub := buildsystest.NewStubClient()
	stub.SetReply(7, buildsys.BuildInfo{TaskID: 77, NVR: "pkg-1-1.el9"})

	h := NewBuildsysTagHandler(stub, fixedResolver)
	env := envelope("org.centos.prod.buildsys.tag", map[string]any{
		"build_id": float64(7),
		"name":     "pkg",
		"owner":    "someone",
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.Type != types.ArtifactKojiBuildCS {
		t.Fatalf("expected koji-build-cs artifact type, got %q", result.Identity.Type)
	}
}
