package searchindex

import "github.com/redhatci/kaijs/internal/types"

// invalidMessagesIndex is the fixed index name for malformed/unassociated
// messages, per spec §4.8.
const invalidMessagesIndex = "invalid-messages"

// NewResolver builds an index-name resolver that is a pure function of
// (context, artifact_type), prefixed by prefix, per spec §4.8. It matches
// the handlers.IndexNameResolver function signature without importing that
// package (handlers already depends on types, not the other way round).
func NewResolver(prefix string) func(ctx types.SearchContext, artifactType types.ArtifactType) string {
	return func(ctx types.SearchContext, artifactType types.ArtifactType) string {
		return prefix + "-" + string(ctx) + "-" + string(artifactType)
	}
}

// InvalidMessagesIndex returns the configured invalid-messages index name,
// prefixed the same way as artifact indices.
func InvalidMessagesIndex(prefix string) string {
	return prefix + "-" + invalidMessagesIndex
}
