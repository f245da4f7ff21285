package searchindex

import (
	"encoding/json"
	"math"
	"time"
	"unicode/utf8"

	"github.com/redhatci/kaijs/internal/types"
)

// maxRawBodyBytes is spec §4.8's 17.8 MB UTF-8 truncation threshold for the
// invalid-messages document's raw_body field.
var maxRawBodyBytes = int(math.Floor(17.8 * 1024 * 1024))

const truncatedMessage = "Message is bigger than 16Mb. Cannot store."

// BuildInvalidMessageAction turns a message that could not be associated
// with a handler, or that failed validation, into the invalid-messages bulk
// action described in spec §4.8. env may be partially populated (a
// malformed envelope may be missing fields); errDetail is the validation or
// dispatch failure detail to record.
func BuildInvalidMessageAction(prefix string, env *types.SpoolMessage, errDetail string, now time.Time) BulkAction {
	doc := types.InvalidMessageDoc{
		SpoolID:   env.SpoolID,
		Topic:     env.BrokerTopic,
		RawBody:   rawBody(env),
		ErrMsg:    errDetail,
		Timestamp: now.Unix(),
	}

	m := map[string]any{
		"spool_id":     doc.SpoolID,
		"broker_topic": doc.Topic,
		"raw_body":     doc.RawBody,
		"errmsg":       doc.ErrMsg,
		"timestamp":    doc.Timestamp,
	}

	return BulkAction{
		DocID:           docIDFor(env),
		IndexName:       InvalidMessagesIndex(prefix),
		Doc:             m,
		Upsert:          m,
		DocAsUpsert:     true,
		RetryOnConflict: 10,
	}
}

func docIDFor(env *types.SpoolMessage) string {
	if env.SpoolID != "" {
		return env.SpoolID
	}
	return env.BrokerMsgID
}

// rawBody marshals env.Body back to JSON text, truncating to a fixed notice
// once it exceeds maxRawBodyBytes of UTF-8 text, per spec §4.8.
func rawBody(env *types.SpoolMessage) string {
	b, err := json.Marshal(env.Body)
	if err != nil {
		return truncatedMessage
	}
	if utf8.RuneCount(b) > maxRawBodyBytes || len(b) > maxRawBodyBytes {
		return truncatedMessage
	}
	return string(b)
}
