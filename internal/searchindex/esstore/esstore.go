// Package esstore is the github.com/elastic/go-elasticsearch/v8-backed
// searchindex.Store, issuing the alternating action/doc bulk body of
// spec §4.8.
package esstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/redhatci/kaijs/internal/searchindex"
)

// Store issues bulk requests against a single Elasticsearch cluster.
type Store struct {
	client *elasticsearch.Client
}

// New wraps an already-configured client.
func New(client *elasticsearch.Client) *Store {
	return &Store{client: client}
}

// bulkResponse is the subset of the bulk API response this package needs:
// the top-level errors flag and, on failure, each item's error detail.
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
		ID string `json:"_id"`
	} `json:"items"`
}

// Bulk sends one bulk request with alternating action/doc lines, per
// spec §4.8. Any bulk-level error ("errors": true) fails the whole batch —
// the caller is expected to treat this as fatal and not retry individual
// lines, since there is no partial-commit story here.
func (s *Store) Bulk(ctx context.Context, actions []searchindex.BulkAction) error {
	if len(actions) == 0 {
		return nil
	}

	var body bytes.Buffer
	for _, a := range actions {
		if err := writeActionLine(&body, a); err != nil {
			return fmt.Errorf("esstore: encode action for %s/%s: %w", a.IndexName, a.DocID, err)
		}
		if err := writeDocLine(&body, a); err != nil {
			return fmt.Errorf("esstore: encode doc for %s/%s: %w", a.IndexName, a.DocID, err)
		}
	}

	res, err := s.client.Bulk(&body, s.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("esstore: bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("esstore: bulk request failed: %s", res.String())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("esstore: decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	var failed []string
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error != nil {
				failed = append(failed, result.ID)
			}
		}
	}
	return &searchindex.BulkError{Failed: failed}
}

func writeActionLine(buf *bytes.Buffer, a searchindex.BulkAction) error {
	line := map[string]any{
		"update": map[string]any{
			"_index":  a.IndexName,
			"_id":     a.DocID,
			"routing": a.Routing,
		},
	}
	return encodeLine(buf, line)
}

func writeDocLine(buf *bytes.Buffer, a searchindex.BulkAction) error {
	line := map[string]any{
		"doc":               a.Doc,
		"doc_as_upsert":     a.DocAsUpsert,
		"retry_on_conflict": a.RetryOnConflict,
	}
	if a.Upsert != nil {
		line["upsert"] = a.Upsert
	}
	return encodeLine(buf, line)
}

func encodeLine(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte('\n')
	return nil
}
