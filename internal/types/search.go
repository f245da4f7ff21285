package types

// SearchContext is the deployment context an artifact belongs to, used in
// index-name resolution alongside the artifact type.
type SearchContext string

const (
	ContextRedHat SearchContext = "redhat"
	ContextCentOS SearchContext = "centos"
	ContextFedora SearchContext = "fedora"
	ContextAny    SearchContext = "any"
)

// Join describes the parent/child relationship embedded in each document,
// matching the search backend's join-field convention (spec §3.4).
type Join struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// ParentDoc is the searchable projection of an artifact, one per
// (artifact_type, artifact_id), keyed by "<artifact_type>-<artifact_id>".
type ParentDoc struct {
	DocID      string         `json:"-"`
	Type       ArtifactType   `json:"type"`
	AID        string         `json:"aid"`
	Searchable map[string]any `json:"searchable"`
	Join       Join           `json:"artifact_join"`
}

// ChildDoc is the per-message searchable projection, keyed by the broker
// message id, routed to its parent's shard.
type ChildDoc struct {
	DocID        string         `json:"-"`
	ParentDocID  string         `json:"-"`
	Searchable   map[string]any `json:"searchable"`
	Envelope     *SpoolMessage  `json:"raw_message"`
	Join         Join           `json:"artifact_join"`
}

// IndexUpdate is one write operation destined for the search index, produced
// by a handler's index-path transform.
type IndexUpdate struct {
	DocID       string
	IndexName   string
	Doc         map[string]any
	Upsert      map[string]any // non-nil when Upsert-only (doc_as_upsert=false)
	DocAsUpsert bool
	Routing     string
}

// InvalidMessageDoc is written to the invalid-messages index when a message
// cannot be associated with a handler, or fails validation, on the
// index-writing path.
type InvalidMessageDoc struct {
	SpoolID   string `json:"spool_id"`
	Topic     string `json:"broker_topic"`
	RawBody   string `json:"raw_body"`
	ErrMsg    string `json:"errmsg"`
	Timestamp int64  `json:"timestamp"`
}
