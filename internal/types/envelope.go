// Package types is the shared data model crossing every package boundary in
// the ingestion pipeline: the spool envelope, artifact documents, search-index
// projections, and the error taxonomy. Keeping these in one leaf package
// (no internal dependencies) matches the teacher's own types package shape.
package types

import (
	"strconv"
	"time"
)

// SpoolMessage is the canonical envelope every broker message is converted
// into before it crosses the spool. The spool owns an envelope exclusively
// from push until Commit or Rollback is called on its claim.
type SpoolMessage struct {
	// SpoolID is locally unique: "<unix_seconds>-<broker_msg_id>".
	SpoolID string `msgpack:"spool_id"`
	// BrokerMsgID is the broker-assigned id, stable across broker retries.
	BrokerMsgID string `msgpack:"broker_msg_id"`
	// BrokerTopic is the normalized topic ("topic://" prefix stripped).
	BrokerTopic string `msgpack:"broker_topic"`
	// ProviderName identifies which listener produced this envelope.
	ProviderName string `msgpack:"provider_name"`
	// ProviderTS is unix seconds when the listener received the broker message.
	ProviderTS int64 `msgpack:"provider_ts"`
	// HeaderTS is an optional timestamp extracted from broker headers.
	HeaderTS *int64 `msgpack:"header_ts,omitempty"`
	// Body is the decoded JSON payload.
	Body map[string]any `msgpack:"body"`
	// BrokerExtra is the verbatim broker header mapping.
	BrokerExtra map[string]any `msgpack:"broker_extra"`
}

// NewSpoolID builds the "<unix_seconds>-<broker_msg_id>" spool id.
func NewSpoolID(received time.Time, brokerMsgID string) string {
	return strconv.FormatInt(received.Unix(), 10) + "-" + brokerMsgID
}
