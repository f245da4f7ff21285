package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/redhatci/kaijs/internal/types"
)

// gateTagPattern matches an RPM-build gate tag per spec §4.6: rhel-8 or
// rhel-9.N, optionally "supp-"-prefixed, ending in "-gate".
var gateTagPattern = regexp.MustCompile(`^(supp-)?rhel-[89](\.\d+)?.*-gate$`)

// moduleGateTagPattern matches a module-build gate tag: the same family,
// ending in "-modules-gate".
var moduleGateTagPattern = regexp.MustCompile(`^(supp-)?rhel-[89](\.\d+)?.*-modules-gate$`)

// IndexNameResolver maps a search context and artifact type to a concrete,
// prefixed index name; injected so handlers stay ignorant of the configured
// index-name prefix, per spec §4.8 ("prefixed by a configured string").
type IndexNameResolver func(ctx types.SearchContext, artifactType types.ArtifactType) string

// contextForTopic derives the deployment context from a broker topic's
// namespace prefix: org.centos.* -> centos, org.fedoraproject.* -> fedora,
// everything else (internal Red Hat brew/errata/CI topics) -> redhat.
func contextForTopic(topic string) types.SearchContext {
	switch {
	case strings.HasPrefix(topic, "org.centos."):
		return types.ContextCentOS
	case strings.HasPrefix(topic, "org.fedoraproject."):
		return types.ContextFedora
	default:
		return types.ContextRedHat
	}
}

// parentDocID is the stable key for an artifact's parent search document.
func parentDocID(identity types.ArtifactIdentity) string {
	return string(identity.Type) + "-" + identity.ID
}

// buildIndexUpdates assembles the canonical parent/child pair described in
// spec §4.6 and §4.8: the parent is created only on first observation
// (doc_as_upsert=false, upsert-only), the child always up-serts, and both are
// routed to the parent's shard.
func buildIndexUpdates(
	resolve IndexNameResolver,
	topic string,
	identity types.ArtifactIdentity,
	parentSearchable map[string]any,
	childSearchable map[string]any,
	env *types.SpoolMessage,
) []types.IndexUpdate {
	ctx := contextForTopic(topic)
	indexName := resolve(ctx, identity.Type)
	parentID := parentDocID(identity)

	parentDoc := map[string]any{
		"type":          identity.Type,
		"aid":           identity.ID,
		"searchable":    parentSearchable,
		"artifact_join": types.Join{Name: "artifact"},
	}
	childDoc := map[string]any{
		"searchable":    childSearchable,
		"raw_message":   env,
		"artifact_join": types.Join{Name: "message", Parent: parentID},
	}

	return []types.IndexUpdate{
		{
			DocID:     parentID,
			IndexName: indexName,
			// Doc is deliberately empty: parent is upsert-only, per spec
			// §4.8 ("parent is created only on first observation;
			// subsequent messages never overwrite it"). A non-empty Doc
			// here would merge fresh fields into an existing parent on
			// every later message.
			Doc:         map[string]any{},
			Upsert:      parentDoc,
			DocAsUpsert: false,
			Routing:     parentID,
		},
		{
			DocID:       env.BrokerMsgID,
			IndexName:   indexName,
			Doc:         childDoc,
			DocAsUpsert: true,
			Routing:     parentID,
		},
	}
}

// getNested walks a dotted path of map keys, returning (value, true) only if
// every intermediate segment resolves to a map[string]any and the final
// segment is present.
func getNested(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, seg := range path {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = asMap[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// getString is getNested specialized for string-typed leaves.
func getString(m map[string]any, path ...string) string {
	v, ok := getNested(m, path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// getBool is getNested specialized for bool-typed leaves.
func getBool(m map[string]any, path ...string) bool {
	v, ok := getNested(m, path...)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// invalidIssuerPattern matches the automated issuers rejected per spec §4.4's
// valid_artifact_issuer schema.
var invalidIssuerPattern = regexp.MustCompile(`(?i)(freshmaker|cpaas)`)

// validateIssuer implements the valid_artifact_issuer special-purpose schema:
// issuers matching /(freshmaker|cpaas)/i are rejected.
func validateIssuer(topic, issuer string) error {
	if invalidIssuerPattern.MatchString(issuer) {
		return &types.ValidationError{Topic: topic, Detail: fmt.Sprintf("issuer %q rejected by valid_artifact_issuer", issuer)}
	}
	return nil
}

// singleState wraps a freshly built ArtifactState as the dedicated state
// pointer a dispatch.DocResult carries.
func singleState(st types.ArtifactState) *types.ArtifactState {
	return &st
}
