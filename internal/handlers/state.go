// Package handlers implements the transform protocol of spec §4.6: one
// handler per topic family, each producing a doc-DB update and/or a set of
// search-index updates from a spool envelope.
package handlers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redhatci/kaijs/internal/types"
)

// creatorName is the fixed origin.creator for every state this loader writes.
const creatorName = "kaijs-loader"

// testCaseNamePattern matches the required "namespace.type.category" shape.
var testCaseNamePattern = regexp.MustCompile(`^\S+\.\S+\.\S+$`)

// MakeState builds the ArtifactState appended to a document's states[],
// deterministically from the envelope, per spec §4.6: stage = second-from-end
// topic segment, state = last segment, version/generated_at read from body,
// origin fixed, thread id derived per spec §3.5, and test_case_name populated
// only for the test stage. Deduplication on append (msg_id == broker_msg_id)
// is the caller's responsibility.
func MakeState(env *types.SpoolMessage) (types.ArtifactState, error) {
	stage, state, err := stageAndState(env.BrokerTopic)
	if err != nil {
		return types.ArtifactState{}, err
	}

	version, _ := env.Body["version"].(string)

	ts, err := generatedAtTimestamp(env.Body)
	if err != nil {
		return types.ArtifactState{}, err
	}

	ks := types.KaiState{
		MsgID:     env.BrokerMsgID,
		Version:   version,
		Stage:     stage,
		State:     state,
		Timestamp: ts,
		Origin:    types.Origin{Creator: creatorName, Reason: "broker message"},
	}

	if stage == types.StageTest {
		ks.TestCaseName, err = TestCaseName(env.Body, version)
		if err != nil {
			return types.ArtifactState{}, err
		}
	}

	ks.ThreadID, err = types.DeriveThreadID(threadIDInput(env.Body, stage, ks.TestCaseName))
	if err != nil {
		var noThread *types.NoThreadIdError
		// Build-stage events (buildsys.tag and friends) routinely carry no
		// pipeline.id, thread_id, or run.url at all — there is no CI run to
		// thread into yet. Only test-stage states, which must join into a
		// shared run thread, reject on a missing anchor.
		if stage != types.StageTest && errors.As(err, &noThread) {
			ks.ThreadID = ""
		} else {
			return types.ArtifactState{}, err
		}
	}

	return types.ArtifactState{
		Broker:    env.ProviderName,
		BrokerMsg: time.Unix(env.ProviderTS, 0).UTC(),
		KaiState:  ks,
	}, nil
}

// threadIDInput extracts the fields DeriveThreadID reads from a decoded body.
func threadIDInput(body map[string]any, stage types.Stage, testCaseName string) types.ThreadIDInput {
	in := types.ThreadIDInput{Stage: stage, TestCaseName: testCaseName}

	if pipeline, ok := body["pipeline"].(map[string]any); ok {
		in.PipelineID, _ = pipeline["id"].(string)
	}
	in.ThreadID, _ = body["thread_id"].(string)
	if run, ok := body["run"].(map[string]any); ok {
		in.RunURL, _ = run["url"].(string)
	}
	return in
}

// stageAndState splits the last two dot-segments of topic into
// (stage, state), per spec §4.6.
func stageAndState(topic string) (types.Stage, types.RunState, error) {
	segs := strings.Split(topic, ".")
	if len(segs) < 2 {
		return "", "", fmt.Errorf("handlers: topic %q has fewer than 2 dot-segments", topic)
	}
	stage := types.Stage(segs[len(segs)-2])
	state := types.RunState(segs[len(segs)-1])
	return stage, state, nil
}

// generatedAtTimestamp reads body.generated_at, an RFC 3339 timestamp on the
// wire, and returns its unix-seconds value. Missing fields fall back to now,
// matching the teacher's tolerant timestamp handling in adapter/webhook.
func generatedAtTimestamp(body map[string]any) (int64, error) {
	raw, ok := body["generated_at"].(string)
	if !ok || raw == "" {
		return time.Now().Unix(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("handlers: parse generated_at %q: %w", raw, err)
	}
	return t.Unix(), nil
}

// TestCaseName implements spec §3.6: namespace + "." + type + "." + category,
// read from body.test.{namespace,type,category} when version is 0.2 or
// later, or the top-level body.{namespace,type,category} for version 0.1.
// Must match ^\S+\.\S+\.\S+$.
func TestCaseName(body map[string]any, version string) (string, error) {
	source := body
	if !strings.HasPrefix(version, "0.1") {
		if test, ok := body["test"].(map[string]any); ok {
			source = test
		}
	}

	namespace, _ := source["namespace"].(string)
	typ, _ := source["type"].(string)
	category, _ := source["category"].(string)
	if namespace == "" || typ == "" || category == "" {
		return "", fmt.Errorf("handlers: incomplete test case name fields (namespace=%q type=%q category=%q)", namespace, typ, category)
	}

	name := namespace + "." + typ + "." + category
	if !testCaseNamePattern.MatchString(name) {
		return "", fmt.Errorf("handlers: test case name %q does not match required shape", name)
	}
	return name, nil
}
