// Package docstore implements the optimistic-concurrency artifact-document
// writer of spec §4.7: find-or-create, merge, diff, compare-and-swap, retry
// up to 30 iterations on conflict.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/types"
)

// MaxOCCRetries bounds the compare-and-swap retry loop, per spec §4.7.
const MaxOCCRetries = 30

// maxDocumentBytes is the 16 MiB BSON document limit named in spec §4.7.h.
const maxDocumentBytes = 16 * 1024 * 1024

// ErrConflict is returned by Store.CompareAndSwap when the filter
// (_id, _version) no longer matches: a concurrent writer won the race.
var ErrConflict = errors.New("docstore: optimistic concurrency conflict")

// ErrExhausted is returned when MaxOCCRetries compare-and-swap attempts all
// hit ErrConflict.
var ErrExhausted = errors.New("docstore: exhausted retries without a clean write")

// Store is the abstract document-database contract of spec §6.6
// (`find_or_create`, `find_one_and_update`).
type Store interface {
	// FindOrCreate returns the current document for identity, creating it
	// with _version=1 if absent, per spec §4.7.2.
	FindOrCreate(ctx context.Context, identity types.ArtifactIdentity) (*types.ArtifactDocument, error)
	// CompareAndSwap writes updateSet (plus _updated and an incremented
	// _version) onto the document matching (current.ID, current.Version).
	// Returns ErrConflict if no document matched (a concurrent writer
	// already bumped _version).
	CompareAndSwap(ctx context.Context, current *types.ArtifactDocument, updateSet map[string]any) (*types.ArtifactDocument, error)
}

// Writer runs the per-envelope optimistic-concurrency merge loop of
// spec §4.7.
type Writer struct {
	store Store
}

// NewWriter builds a Writer backed by store.
func NewWriter(store Store) *Writer {
	return &Writer{store: store}
}

// Write runs handler.HandleDoc(env), then the retry loop: find_or_create,
// merge, diff, compare-and-swap, returning the final document. A
// NoNeedToProcessError from the handler propagates unchanged (the caller
// commits silently per spec §7).
func (w *Writer) Write(ctx context.Context, handler dispatch.Handler, env *types.SpoolMessage) (*types.ArtifactDocument, error) {
	result, err := handler.HandleDoc(env)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < MaxOCCRetries; attempt++ {
		current, err := w.store.FindOrCreate(ctx, result.Identity)
		if err != nil {
			return nil, err
		}

		computed, changed := mergeDocument(current, result)
		if !changed {
			return computed, nil
		}

		if err := checkDocumentSize(computed); err != nil {
			return nil, err
		}

		updateSet, err := mkUpdateSet(current, computed)
		if err != nil {
			return nil, err
		}
		if len(updateSet) == 0 {
			return computed, nil
		}

		updated, err := w.store.CompareAndSwap(ctx, current, updateSet)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, ErrExhausted
}

// checkDocumentSize estimates the BSON-equivalent size of doc via its JSON
// encoding and raises ToLargeDocumentError past the 16 MiB limit.
func checkDocumentSize(doc *types.ArtifactDocument) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if len(b) > maxDocumentBytes {
		return &types.ToLargeDocumentError{Type: string(doc.Type), ArtifactID: doc.AID, SizeBytes: len(b)}
	}
	return nil
}

// now is overridable in tests needing deterministic timestamps.
var now = func() time.Time { return time.Now().UTC() }
