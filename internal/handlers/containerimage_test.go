package handlers

import "testing"

func TestContainerImageHandlerExtractsManifestListDigest(t *testing.T) {
	h := NewContainerImageHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.ci.redhat-container-image.test.complete", map[string]any{
		"info": map[string]any{
			"name":       "myimage",
			"version":    "1.0",
			"release":    "1",
			"task_id":    "900",
			"owner_name": "someone",
			"extra": map[string]any{
				"image": map[string]any{
					"index": map[string]any{
						"digests": map[string]any{
							manifestListMediaType: "sha256:abc123",
						},
					},
				},
			},
		},
		"run":  map[string]any{"url": "https://example.com/run/11"},
		"test": map[string]any{"namespace": "osci", "type": "tier0", "category": "functional"},
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.ID != "sha256:abc123" {
		t.Fatalf("unexpected artifact id: %q", result.Identity.ID)
	}
}

func TestContainerImageHandlerMissingDigestFails(t *testing.T) {
	h := NewContainerImageHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.ci.redhat-container-image.test.complete", map[string]any{
		"info": map[string]any{"extra": map[string]any{}},
	})
	if _, err := h.HandleDoc(env); err == nil {
		t.Fatalf("expected error for missing manifest-list digest")
	}
}
