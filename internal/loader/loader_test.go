package loader_test

import (
	"context"
	"testing"
	"time"

	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/docstore"
	"github.com/redhatci/kaijs/internal/docstore/docstoretest"
	"github.com/redhatci/kaijs/internal/loader"
	"github.com/redhatci/kaijs/internal/searchindex"
	"github.com/redhatci/kaijs/internal/searchindex/searchindextest"
	"github.com/redhatci/kaijs/internal/spool"
	"github.com/redhatci/kaijs/internal/types"
	"github.com/redhatci/kaijs/internal/validate"
)

// fakeHandler is a minimal dispatch.Handler for exercising the loop's
// classification logic without a real handlers.Registry.
type fakeHandler struct {
	identity  types.ArtifactIdentity
	payload   types.RPMBuildPayload
	docErr    error
	indexErr  error
	skipIndex bool

	// indexCalls counts HandleIndex invocations, so tests can assert the
	// index transform never runs once the doc path has already classified
	// the envelope as invalid.
	indexCalls int
}

func (h *fakeHandler) Name() string { return "fake" }

func (h *fakeHandler) HandleDoc(env *types.SpoolMessage) (*dispatch.DocResult, error) {
	if h.docErr != nil {
		return nil, h.docErr
	}
	state := types.ArtifactState{
		Broker:   env.ProviderName,
		KaiState: types.KaiState{MsgID: env.BrokerMsgID, Stage: types.StageTest, State: types.RunStateComplete},
	}
	return &dispatch.DocResult{Identity: h.identity, Payload: h.payload, State: &state}, nil
}

func (h *fakeHandler) HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error) {
	h.indexCalls++
	if h.indexErr != nil {
		return nil, h.indexErr
	}
	if h.skipIndex {
		return nil, nil
	}
	return []types.IndexUpdate{{DocID: env.BrokerMsgID, IndexName: "kaijs-redhat-koji-build", Doc: map[string]any{"a": 1}, DocAsUpsert: true}}, nil
}

func envelope(t *testing.T, msgID, topic string, body map[string]any) *types.SpoolMessage {
	t.Helper()
	return &types.SpoolMessage{
		SpoolID:      "1000-" + msgID,
		BrokerMsgID:  msgID,
		BrokerTopic:  topic,
		ProviderName: "umb",
		ProviderTS:   1000,
		Body:         body,
	}
}

// harness bundles a Loop with its stores/spool for assertions.
type harness struct {
	loop     *loader.Loop
	sp       *spool.Spool
	docs     *docstoretest.Store
	idx      *searchindextest.Store
	index    *searchindex.BatchWriter
	registry *dispatch.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithNonCI(t, validate.DefaultNonCIRegistry())
}

func newHarnessWithNonCI(t *testing.T, nonCI *validate.NonCIRegistry) *harness {
	t.Helper()
	dir := t.TempDir()
	sp, err := spool.Open(dir)
	if err != nil {
		t.Fatalf("spool.Open: %v", err)
	}

	docs := docstoretest.New()
	idx := searchindextest.New()
	registry := dispatch.NewRegistry()
	validator := validate.New(nil, nonCI)
	index := searchindex.NewBatchWriter(idx, nil, nil)

	l := loader.New(loader.Config{
		Spool:       sp,
		Validator:   validator,
		Registry:    registry,
		Docs:        docstore.NewWriter(docs),
		Index:       index,
		Records:     docs,
		IndexPrefix: "kaijs",
	})

	return &harness{loop: l, sp: sp, docs: docs, idx: idx, index: index, registry: registry}
}

func (h *harness) push(t *testing.T, env *types.SpoolMessage) {
	t.Helper()
	if err := h.sp.Push(env); err != nil {
		t.Fatalf("push: %v", err)
	}
}

// runOne runs the loop long enough to drain exactly the one envelope
// pushed by the caller, then cancels so Run returns.
func runOne(t *testing.T, h *harness) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	waitUntilEmpty(t, h.sp)
	cancel()
	return <-done
}

func waitUntilEmpty(t *testing.T, sp *spool.Spool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := sp.Length()
		if err != nil {
			t.Fatalf("length: %v", err)
		}
		if n == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("spool never drained")
}

func TestLoopCommitsBuildsysTagOnSuccess(t *testing.T) {
	h := newHarness(t)
	h.registry.Register(`buildsys\.tag$`, &fakeHandler{
		identity: types.ArtifactIdentity{Type: types.ArtifactKojiBuild, ID: "111"},
		payload:  types.RPMBuildPayload{TaskID: "111", NVR: "pkg-1-1"},
	})

	env := envelope(t, "msg-1", "org.fedoraproject.prod.buildsys.tag", map[string]any{
		"build_id": float64(1728223), "tag": "f33-updates", "name": "gcompris-qt",
	})
	h.push(t, env)

	if err := runOne(t, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := h.docs.Get(types.ArtifactIdentity{Type: types.ArtifactKojiBuild, ID: "111"}); !ok {
		t.Fatalf("expected an artifact document to be written")
	}
	// One envelope stays below the batch writer's count/byte thresholds, so
	// force the pending batch out the way cmd/loader does on shutdown.
	if err := h.index.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if h.idx.Calls() == 0 {
		t.Fatalf("expected at least one bulk index call")
	}
	if len(h.docs.RawMessages) != 1 {
		t.Fatalf("expected 1 raw message record, got %d", len(h.docs.RawMessages))
	}
	if len(h.docs.ValidationErrors) != 0 {
		t.Fatalf("expected no validation-error records on success")
	}

	n, err := h.sp.Length()
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected the spool to be empty after commit, got %d pending", n)
	}
}

// TestLoopScenarioS3WrongVersionCommitsAsInvalid implements spec §8.3 S3:
// a CI topic body missing "version" is committed with no artifacts write,
// and one validation-errors record is recorded.
func TestLoopScenarioS3WrongVersionCommitsAsInvalid(t *testing.T) {
	h := newHarness(t)
	h.registry.Register(`.*`, &fakeHandler{identity: types.ArtifactIdentity{Type: types.ArtifactBrewBuild, ID: "1"}})

	env := envelope(t, "msg-2", "VirtualTopic.eng.ci.osci.brew-build.test.complete", map[string]any{})
	h.push(t, env)

	if err := runOne(t, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := h.docs.Get(types.ArtifactIdentity{Type: types.ArtifactBrewBuild, ID: "1"}); ok {
		t.Fatalf("expected no artifacts document to be written")
	}
	if len(h.docs.ValidationErrors) != 1 {
		t.Fatalf("expected 1 validation-errors record, got %d", len(h.docs.ValidationErrors))
	}
	if got := h.docs.ValidationErrors[0].ErrMsg; got == "" {
		t.Fatalf("expected a non-empty errmsg")
	}
}

// TestLoopScenarioS4NoNeedToProcessCommitsSilently implements spec §8.3 S4:
// a handler declining to process commits the envelope with no writes to any
// collection or index (raw-messages excepted, per §3.7's always-write rule).
func TestLoopScenarioS4NoNeedToProcessCommitsSilently(t *testing.T) {
	nonCI := validate.NewNonCIRegistry().Add(`brew\.build\.complete$`)
	h := newHarnessWithNonCI(t, nonCI)
	h.registry.Register(`.*`, &fakeHandler{
		docErr:    &types.NoNeedToProcessError{Reason: "non-container build"},
		skipIndex: true,
	})

	env := envelope(t, "msg-3", "VirtualTopic.eng.brew.build.complete", map[string]any{
		"info": map[string]any{"extra": map[string]any{"osbs_build": map[string]any{"kind": "rpm_build"}}},
	})
	h.push(t, env)

	if err := runOne(t, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.docs.ValidationErrors) != 0 {
		t.Fatalf("expected no validation-errors record on a no-need-to-process outcome")
	}
	if h.idx.Calls() != 0 {
		t.Fatalf("expected no index writes, got %d", h.idx.Calls())
	}
	if len(h.docs.RawMessages) != 1 {
		t.Fatalf("expected the always-write raw-message record to still land")
	}
}

func TestLoopNoAssociatedHandlerRecordsInvalid(t *testing.T) {
	h := newHarness(t)
	// registry left empty: every topic misses.

	env := envelope(t, "msg-4", "buildsys.tag", map[string]any{"build_id": float64(1), "tag": "x", "name": "y"})
	h.push(t, env)

	if err := runOne(t, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.docs.ValidationErrors) != 1 {
		t.Fatalf("expected 1 validation-errors record for the dispatch miss, got %d", len(h.docs.ValidationErrors))
	}
}

// TestLoopHandleIndexValidationErrorCommitsToInvalidSink covers a handler
// whose HandleIndex raises a per-message validation-class error (e.g. a
// container-image message missing its manifest-list digest): the envelope
// must commit and record to the invalid sink, not take down the loader.
func TestLoopHandleIndexValidationErrorCommitsToInvalidSink(t *testing.T) {
	h := newHarness(t)
	handler := &fakeHandler{
		identity: types.ArtifactIdentity{Type: types.ArtifactRedHatContainer, ID: "sha256:abc"},
		indexErr: &types.ValidationError{Detail: "missing info.extra.image.index.digests"},
	}
	h.registry.Register(`.*`, handler)

	env := envelope(t, "msg-6", "VirtualTopic.eng.ci.container-image.test.complete", map[string]any{
		"version":  "0.2.0",
		"artifact": map[string]any{"type": "redhat-container-image", "id": "sha256:abc"},
	})
	h.push(t, env)

	if err := runOne(t, h); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(h.docs.ValidationErrors) != 1 {
		t.Fatalf("expected 1 validation-errors record for the index-path failure, got %d", len(h.docs.ValidationErrors))
	}
	if _, ok := h.docs.Get(handler.identity); !ok {
		t.Fatalf("expected the doc-path write (which ran first and succeeded) to still be persisted")
	}
}

// TestLoopDocValidationClassErrorSkipsIndexTransform covers the ordering fix:
// a doc-path validation/derive failure (e.g. NoThreadIdError) must be
// classified and committed before the index transform ever runs, so a
// message never ends up with both a valid index doc and an invalid-sink
// record.
func TestLoopDocValidationClassErrorSkipsIndexTransform(t *testing.T) {
	h := newHarness(t)
	handler := &fakeHandler{
		identity: types.ArtifactIdentity{Type: types.ArtifactKojiBuild, ID: "222"},
		docErr:   &types.NoThreadIdError{Reason: "no pipeline.id, thread_id, or run.url present"},
	}
	h.registry.Register(`.*`, handler)

	env := envelope(t, "msg-7", "org.fedoraproject.prod.buildsys.tag", map[string]any{
		"build_id": float64(222), "tag": "f33-updates", "name": "pkg",
	})
	h.push(t, env)

	if err := runOne(t, h); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(h.docs.ValidationErrors) != 1 {
		t.Fatalf("expected 1 validation-errors record, got %d", len(h.docs.ValidationErrors))
	}
	if handler.indexCalls != 0 {
		t.Fatalf("expected HandleIndex to never run once the doc path already classified the envelope as invalid, got %d calls", handler.indexCalls)
	}
	if _, ok := h.docs.Get(handler.identity); ok {
		t.Fatalf("expected no artifacts document for a doc-path validation failure")
	}
}

func TestLoopEnvelopeShapeViolationDropsWithoutSinkWrite(t *testing.T) {
	h := newHarness(t)

	// Missing broker_topic fails CheckEnvelopeShape before validation runs.
	broken := &types.SpoolMessage{SpoolID: "1000-msg-5", BrokerMsgID: "msg-5", ProviderName: "umb", ProviderTS: 1000, Body: map[string]any{}}
	h.push(t, broken)

	if err := runOne(t, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.docs.ValidationErrors) != 0 {
		t.Fatalf("envelope-shape violations must not write to the invalid sink, got %d", len(h.docs.ValidationErrors))
	}
	if len(h.docs.RawMessages) != 0 {
		t.Fatalf("a dropped envelope never reaches the always-write raw-message path")
	}
}
