package searchindex

import (
	"strings"
	"testing"
	"time"

	"github.com/redhatci/kaijs/internal/types"
)

func TestBuildInvalidMessageActionCarriesRawBody(t *testing.T) {
	env := &types.SpoolMessage{
		SpoolID:     "1000-msg-1",
		BrokerMsgID: "msg-1",
		BrokerTopic: "org.fedoraproject.prod.buildsys.tag",
		Body:        map[string]any{"tag": "not-a-gate"},
	}

	action := BuildInvalidMessageAction("kaijs", env, "invalid gate tag", time.Unix(1000, 0).UTC())

	if action.IndexName != "kaijs-invalid-messages" {
		t.Fatalf("unexpected index name: %s", action.IndexName)
	}
	if action.DocID != "1000-msg-1" {
		t.Fatalf("unexpected doc id: %s", action.DocID)
	}
	if !action.DocAsUpsert {
		t.Fatalf("expected doc_as_upsert=true for invalid-messages writes")
	}
	if action.Doc["errmsg"] != "invalid gate tag" {
		t.Fatalf("unexpected errmsg: %+v", action.Doc)
	}
	if !strings.Contains(action.Doc["raw_body"].(string), "not-a-gate") {
		t.Fatalf("expected raw body to be preserved under the 17.8MB limit, got %+v", action.Doc["raw_body"])
	}
}

func TestBuildInvalidMessageActionTruncatesOversizedBody(t *testing.T) {
	env := &types.SpoolMessage{
		SpoolID: "1000-msg-2",
		Body:    map[string]any{"blob": strings.Repeat("x", maxRawBodyBytes+1)},
	}

	action := BuildInvalidMessageAction("kaijs", env, "too large", time.Unix(1000, 0).UTC())

	if action.Doc["raw_body"] != truncatedMessage {
		t.Fatalf("expected the oversized body to be replaced with the truncation notice, got %v", action.Doc["raw_body"])
	}
}

func TestNewResolverIsPureAndPrefixed(t *testing.T) {
	resolve := NewResolver("kaijs")
	got := resolve(types.ContextCentOS, types.ArtifactKojiBuildCS)
	want := "kaijs-centos-koji-build-cs"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if resolve(types.ContextCentOS, types.ArtifactKojiBuildCS) != got {
		t.Fatalf("resolver must be a pure function of (context, artifact_type)")
	}
}
