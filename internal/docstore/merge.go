package docstore

import (
	"reflect"
	"time"

	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// scratchExpiryDays and containerExpiryDays are the TTL hints named in spec §3.3:
// scratch builds expire after 60 days, container images after 182 days.
const (
	scratchExpiryDays   = 60
	containerExpiryDays = 182
)

// mergeDocument runs the handler-transform step of spec §4.7.2.a: copy
// current, overlay the freshly extracted payload, and append the state
// entry if its msg_id is not already present in states[].
//
// It also reports whether the merge produced any semantic change. The
// generic path-diff in diff.go treats arrays as opaque leaves that always
// win regardless of equality (needed for scenario S5's "b.y" case), which
// would otherwise make a duplicate delivery that appends nothing to
// states[] still emit a spurious "states" update and bump _version on a
// pure no-op (scenario S2). Detecting the no-op here, before the generic
// diff runs, keeps both invariants true at once.
func mergeDocument(current *types.ArtifactDocument, result *dispatch.DocResult) (*types.ArtifactDocument, bool) {
	computed := *current
	computed.AID = result.Identity.ID
	computed.Type = result.Identity.Type
	computed.States = append([]types.ArtifactState(nil), current.States...)

	payloadChanged := !reflect.DeepEqual(payloadValue(&computed), result.Payload) && result.Payload != nil
	applyPayload(&computed, result.Payload)

	stateAppended := false
	if result.State != nil && !hasState(computed.States, result.State.MsgID()) {
		computed.States = append(computed.States, *result.State)
		stateAppended = true
	}

	computed.ExpireAt = expiryHint(&computed)

	return &computed, stateAppended || payloadChanged
}

// payloadValue extracts doc's current single payload sub-object (if any) as
// the same concrete type applyPayload would set, so mergeDocument can tell
// whether a freshly extracted payload actually differs from what's stored.
func payloadValue(doc *types.ArtifactDocument) any {
	switch {
	case doc.RPMBuild != nil:
		return *doc.RPMBuild
	case doc.MBSBuild != nil:
		return *doc.MBSBuild
	case doc.DistGitPR != nil:
		return *doc.DistGitPR
	case doc.ProductmdCompose != nil:
		return *doc.ProductmdCompose
	default:
		return nil
	}
}

// hasState implements the dedup-by-msg_id invariant of spec §3.3/§4.6.
func hasState(states []types.ArtifactState, msgID string) bool {
	for _, s := range states {
		if s.MsgID() == msgID {
			return true
		}
	}
	return false
}

// applyPayload sets the one payload sub-object matching payload's concrete
// type, per spec §3.3's "exactly one of rpm_build|mbs_build|dist_git_pr|
// productmd_compose is present" invariant. A nil payload (e.g. the
// errata-tool handler, which only appends a state entry) leaves the
// existing payload untouched.
func applyPayload(doc *types.ArtifactDocument, payload any) {
	switch p := payload.(type) {
	case types.RPMBuildPayload:
		doc.RPMBuild = &p
	case types.MBSBuildPayload:
		doc.MBSBuild = &p
	case types.DistGitPRPayload:
		doc.DistGitPR = &p
	case types.ComposePayload:
		doc.ProductmdCompose = &p
	case nil:
	}
}

// expiryHint computes the TTL hint of spec §3.3: 60 days for scratch builds,
// 182 days for container images; any other document keeps its existing
// ExpireAt (nil unless one was set before).
func expiryHint(doc *types.ArtifactDocument) *time.Time {
	switch {
	case doc.Type == types.ArtifactRedHatContainer:
		t := now().AddDate(0, 0, containerExpiryDays)
		return &t
	case doc.RPMBuild != nil && doc.RPMBuild.Scratch:
		t := now().AddDate(0, 0, scratchExpiryDays)
		return &t
	default:
		return doc.ExpireAt
	}
}
