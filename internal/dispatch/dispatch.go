// Package dispatch implements the topic→handler and version→transform
// ordered registries of spec §4.5. Registration order is most-specific-first:
// lookup returns the first regex that matches, so callers must register
// subgroup patterns before catch-alls.
package dispatch

import (
	"regexp"

	"github.com/redhatci/kaijs/internal/types"
)

// Handler is the transform protocol of spec §4.6: given a spool envelope,
// produce a document-DB update and/or a set of search-index updates.
type Handler interface {
	// Name identifies the handler for logging and metrics.
	Name() string
	// HandleDoc runs the doc-DB path transform.
	HandleDoc(env *types.SpoolMessage) (*DocResult, error)
	// HandleIndex runs the index path transform.
	HandleIndex(env *types.SpoolMessage) ([]types.IndexUpdate, error)
}

// DocResult is the outcome of a handler's doc-DB path transform: the
// artifact identity to aggregate into, the payload to merge, and the state
// entry to append (if any).
type DocResult struct {
	Identity types.ArtifactIdentity
	Payload  any
	State    *types.ArtifactState
}

// entry pairs a compiled topic regex with its handler.
type entry struct {
	pattern *regexp.Regexp
	handler Handler
}

// Registry is the ordered (regex, handler) topic dispatch table.
type Registry struct {
	entries []entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a (pattern, handler) pair. Registration order is
// significant: register the most specific patterns first.
func (r *Registry) Register(pattern string, handler Handler) *Registry {
	r.entries = append(r.entries, entry{pattern: regexp.MustCompile(pattern), handler: handler})
	return r
}

// Dispatch returns the handler for the first pattern matching topic, or
// NoAssociatedHandlerError if none match.
func (r *Registry) Dispatch(topic string) (Handler, error) {
	for _, e := range r.entries {
		if e.pattern.MatchString(topic) {
			return e.handler, nil
		}
	}
	return nil, &types.NoAssociatedHandlerError{Topic: topic}
}

// Transform is a version-specific payload transform function.
type Transform func(env *types.SpoolMessage) (*DocResult, error)

// transformEntry pairs a compiled version regex with its transform.
type transformEntry struct {
	pattern   *regexp.Regexp
	transform Transform
}

// TransformRegistry is the per-handler version→transform sub-registry of
// spec §4.5: "a second registry maps version regex → payload transform;
// the first regex matching the message version yields the transform
// function. Default catch-all /^.*$/ → V1 transform."
type TransformRegistry struct {
	entries []transformEntry
}

// NewTransformRegistry creates an empty registry; the mandatory catch-all
// is not registered here but by Default, which must be called last.
// Register more specific version patterns before calling Default.
func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{}
}

// Register appends a (version pattern, transform) pair.
func (t *TransformRegistry) Register(versionPattern string, fn Transform) *TransformRegistry {
	t.entries = append(t.entries, transformEntry{pattern: regexp.MustCompile(versionPattern), transform: fn})
	return t
}

// Default registers the catch-all "^.*$" → fn as the final fallback.
// Call this once, after registering every version-specific transform.
func (t *TransformRegistry) Default(fn Transform) *TransformRegistry {
	return t.Register(`^.*$`, fn)
}

// Resolve returns the transform for the first pattern matching version.
func (t *TransformRegistry) Resolve(version string) (Transform, error) {
	for _, e := range t.entries {
		if e.pattern.MatchString(version) {
			return e.transform, nil
		}
	}
	return nil, &types.NoValidationSchemaError{Version: version, Detail: "no transform registered for this version"}
}
