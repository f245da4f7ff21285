package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ThreadIDInput is the set of fields thread-id derivation reads from an
// envelope body. Keeping derivation pure (no envelope/map coupling) makes it
// directly testable per spec §8.1 ("thread-id derivation is pure").
type ThreadIDInput struct {
	PipelineID   string
	ThreadID     string
	RunURL       string
	Stage        Stage
	TestCaseName string
}

// DeriveThreadID implements spec §3.5: body.pipeline.id if present and a
// non-empty string, else body.thread_id, else a deterministic dummy thread
// id hashed from run.url (and test_case_name, when stage == test). Returns
// NoThreadIdError if no anchor can be formed.
func DeriveThreadID(in ThreadIDInput) (string, error) {
	if in.PipelineID != "" {
		return in.PipelineID, nil
	}
	if in.ThreadID != "" {
		return in.ThreadID, nil
	}
	if in.RunURL == "" {
		return "", &NoThreadIdError{Reason: "no pipeline.id, thread_id, or run.url present"}
	}

	anchor := in.RunURL
	if in.Stage == StageTest && in.TestCaseName != "" {
		anchor = anchor + "~" + in.TestCaseName
	}

	sum := sha256.Sum256([]byte(anchor))
	return fmt.Sprintf("dummy-thread-%s", hex.EncodeToString(sum[:])), nil
}
