package handlers

import "testing"

func TestComposeHandlerBuildsIdentityFromComposeID(t *testing.T) {
	h := NewComposeHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.pungi.compose.status.change", map[string]any{
		"compose_id":   "Fedora-Rawhide-20260101.n.0",
		"compose_type": "nightly",
		"release":      "Rawhide",
		"run":          map[string]any{"url": "https://example.com/run/10"},
	})

	result, err := h.HandleDoc(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Identity.ID != "Fedora-Rawhide-20260101.n.0" {
		t.Fatalf("unexpected artifact id: %q", result.Identity.ID)
	}
}

func TestComposeHandlerMissingIDFails(t *testing.T) {
	h := NewComposeHandler(fixedResolver)
	env := envelope("org.fedoraproject.prod.pungi.compose.status.change", map[string]any{})
	if _, err := h.HandleDoc(env); err == nil {
		t.Fatalf("expected error for missing compose id")
	}
}
