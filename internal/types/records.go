package types

import "time"

// RawMessageRecord is a thin, always-write passthrough of a committed
// envelope, written to the "raw-messages" collection alongside every other
// outcome (success, invalid, or no-op) for replay and audit purposes.
type RawMessageRecord struct {
	ID          string         `bson:"_id" json:"_id"`
	SpoolID     string         `bson:"spool_id" json:"spool_id"`
	BrokerMsgID string         `bson:"broker_msg_id" json:"broker_msg_id"`
	BrokerTopic string         `bson:"broker_topic" json:"broker_topic"`
	Body        map[string]any `bson:"body" json:"body"`
	Received    time.Time      `bson:"received" json:"received"`
}

// NewRawMessageRecord builds the passthrough record for env, keyed by its
// spool id so replays of the same envelope overwrite rather than duplicate.
func NewRawMessageRecord(env *SpoolMessage, now time.Time) *RawMessageRecord {
	return &RawMessageRecord{
		ID:          env.SpoolID,
		SpoolID:     env.SpoolID,
		BrokerMsgID: env.BrokerMsgID,
		BrokerTopic: env.BrokerTopic,
		Body:        env.Body,
		Received:    now,
	}
}

// ValidationErrorRecord is written to the "validation-errors" collection
// (TTL 15 days) for every envelope that is committed as invalid: failed
// validation, an unmatched handler, or an oversized document. It mirrors the
// "invalid-messages" search-index document so both sinks carry the same
// diagnostic shape.
type ValidationErrorRecord struct {
	ID          string    `bson:"_id" json:"_id"`
	SpoolID     string    `bson:"spool_id" json:"spool_id"`
	BrokerTopic string    `bson:"broker_topic" json:"broker_topic"`
	RawBody     string    `bson:"raw_body" json:"raw_body"`
	ErrMsg      string    `bson:"errmsg" json:"errmsg"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	ExpireAt    time.Time `bson:"expire_at" json:"expire_at"`
}

const validationErrorTTL = 15 * 24 * time.Hour

// NewValidationErrorRecord builds the invalid-sink record for env, carrying
// detail as the human-readable reason (e.g. "missing 'version'").
func NewValidationErrorRecord(env *SpoolMessage, rawBody, detail string, now time.Time) *ValidationErrorRecord {
	return &ValidationErrorRecord{
		ID:          env.SpoolID,
		SpoolID:     env.SpoolID,
		BrokerTopic: env.BrokerTopic,
		RawBody:     rawBody,
		ErrMsg:      detail,
		Timestamp:   now,
		ExpireAt:    now.Add(validationErrorTTL),
	}
}
