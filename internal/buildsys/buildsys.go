// Package buildsys implements the build-system XML-RPC enrichment lookup
// named "interface only" in spec.md §1, but given a concrete implementation
// here per SPEC_FULL.md §4.9 so the buildsys.tag handler (spec §4.6) is
// exercised end-to-end.
package buildsys

import "context"

// BuildInfo is the subset of a koji/brew getBuild reply this system reads.
// Field names follow the wire reply's own casing (extra is a nested map;
// specific fields like the NVR or source URL are pulled out by handlers).
type BuildInfo struct {
	TaskID  int            `xmlrpc:"task_id"`
	NVR     string         `xmlrpc:"nvr"`
	Name    string         `xmlrpc:"name"`
	Version string         `xmlrpc:"version"`
	Release string         `xmlrpc:"release"`
	Owner   string         `xmlrpc:"owner_name"`
	Extra   map[string]any `xmlrpc:"extra"`
}

// Client is the abstract collaborator named in spec.md §1.
type Client interface {
	GetBuild(ctx context.Context, buildID int) (BuildInfo, error)
}
