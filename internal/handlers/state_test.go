package handlers

import (
	"testing"

	"github.com/redhatci/kaijs/internal/types"
)

func envelope(topic string, body map[string]any) *types.SpoolMessage {
	return &types.SpoolMessage{
		BrokerMsgID:  "msg-1",
		BrokerTopic:  topic,
		ProviderName: "umb",
		ProviderTS:   1700000000,
		Body:         body,
	}
}

func TestMakeStateBuildStageNoTestCaseName(t *testing.T) {
	env := envelope("org.centos.prod.buildsys.tag", map[string]any{
		"version":      "1.1.1",
		"generated_at": "2026-01-01T00:00:00Z",
		"run":          map[string]any{"url": "https://example.com/run/9"},
	})

	st, err := MakeState(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.KaiState.Stage != types.Stage("buildsys") {
		t.Fatalf("unexpected stage: %q", st.KaiState.Stage)
	}
	if st.KaiState.State != types.RunState("tag") {
		t.Fatalf("unexpected state: %q", st.KaiState.State)
	}
	if st.KaiState.TestCaseName != "" {
		t.Fatalf("expected no test case name for build stage, got %q", st.KaiState.TestCaseName)
	}
	if st.KaiState.ThreadID == "" {
		t.Fatalf("expected a derived thread id")
	}
	if st.KaiState.MsgID != "msg-1" {
		t.Fatalf("unexpected msg id: %q", st.KaiState.MsgID)
	}
	if st.Broker != "umb" {
		t.Fatalf("unexpected broker: %q", st.Broker)
	}
}

func TestMakeStateTestStagePopulatesCaseName(t *testing.T) {
	env := envelope("org.centos.prod.ci.brew-build.test.complete", map[string]any{
		"version":      "1.2.0",
		"generated_at": "2026-01-01T00:00:00Z",
		"run":          map[string]any{"url": "https://example.com/run/9"},
		"test": map[string]any{
			"namespace": "cvp",
			"type":      "tier1",
			"category":  "functional",
		},
	})

	st, err := MakeState(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.KaiState.Stage != types.StageTest {
		t.Fatalf("unexpected stage: %q", st.KaiState.Stage)
	}
	if st.KaiState.TestCaseName != "cvp.tier1.functional" {
		t.Fatalf("unexpected test case name: %q", st.KaiState.TestCaseName)
	}
}

func TestMakeStateTestStageVersion01ReadsTopLevelFields(t *testing.T) {
	env := envelope("org.centos.prod.ci.brew-build.test.complete", map[string]any{
		"version":      "0.1.0",
		"generated_at": "2026-01-01T00:00:00Z",
		"run":          map[string]any{"url": "https://example.com/run/9"},
		"namespace":    "cvp",
		"type":         "tier1",
		"category":     "functional",
	})

	st, err := MakeState(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.KaiState.TestCaseName != "cvp.tier1.functional" {
		t.Fatalf("unexpected test case name: %q", st.KaiState.TestCaseName)
	}
}

func TestMakeStateBuildStageMissingThreadAnchorLeavesThreadIDEmpty(t *testing.T) {
	env := envelope("org.centos.prod.buildsys.tag", map[string]any{
		"version":      "1.1.1",
		"generated_at": "2026-01-01T00:00:00Z",
	})

	st, err := MakeState(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.KaiState.ThreadID != "" {
		t.Fatalf("expected empty thread id for a build-stage message with no anchor, got %q", st.KaiState.ThreadID)
	}
}

func TestMakeStateTestStageMissingThreadAnchorFails(t *testing.T) {
	env := envelope("org.centos.prod.ci.brew-build.test.complete", map[string]any{
		"version":      "1.2.0",
		"generated_at": "2026-01-01T00:00:00Z",
		"test": map[string]any{
			"namespace": "cvp",
			"type":      "tier1",
			"category":  "functional",
		},
	})

	if _, err := MakeState(env); err == nil {
		t.Fatalf("expected error when a test-stage message has no pipeline id, thread id, or run url")
	}
}

func TestMakeStateRejectsShortTopic(t *testing.T) {
	env := envelope("buildsys", map[string]any{"version": "1.0.0"})
	if _, err := MakeState(env); err == nil {
		t.Fatalf("expected error for topic with fewer than 2 segments")
	}
}
