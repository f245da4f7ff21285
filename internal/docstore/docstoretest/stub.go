// Package docstoretest provides an in-memory docstore.Store for handler and
// writer unit tests, grounded on the teacher's lode.StubClient pattern.
package docstoretest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redhatci/kaijs/internal/docstore"
	"github.com/redhatci/kaijs/internal/types"
)

// Store is an in-memory docstore.Store keyed by (type, aid). It also
// implements loader.RecordSink so loader tests can use one fake for both
// the OCC-managed artifacts collection and the raw-messages/validation-errors
// collections, the way mongostore.Store does in production.
type Store struct {
	mu   sync.Mutex
	docs map[string]*types.ArtifactDocument

	// ConflictsBeforeSuccess forces CompareAndSwap to report ErrConflict
	// this many times (per key) before allowing the write through, for
	// exercising docstore.Writer's retry loop.
	ConflictsBeforeSuccess int
	conflictCounts         map[string]int

	RawMessages      []*types.RawMessageRecord
	ValidationErrors []*types.ValidationErrorRecord
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		docs:           make(map[string]*types.ArtifactDocument),
		conflictCounts: make(map[string]int),
	}
}

func key(identity types.ArtifactIdentity) string {
	return string(identity.Type) + "/" + identity.ID
}

// FindOrCreate returns the existing document or creates one at _version=1.
func (s *Store) FindOrCreate(ctx context.Context, identity types.ArtifactIdentity) (*types.ArtifactDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(identity)
	if doc, ok := s.docs[k]; ok {
		copied := *doc
		copied.States = append([]types.ArtifactState(nil), doc.States...)
		return &copied, nil
	}

	now := time.Now().UTC()
	doc := &types.ArtifactDocument{
		ID:      k,
		Version: 1,
		AID:     identity.ID,
		Type:    identity.Type,
		Created: now,
		Updated: now,
	}
	s.docs[k] = doc
	copied := *doc
	return &copied, nil
}

// CompareAndSwap applies updateSet if current.Version still matches the
// stored document's version, bumping _version by one.
func (s *Store) CompareAndSwap(ctx context.Context, current *types.ArtifactDocument, updateSet map[string]any) (*types.ArtifactDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := current.ID
	stored, ok := s.docs[k]
	if !ok || stored.Version != current.Version {
		return nil, docstore.ErrConflict
	}

	if s.conflictCounts[k] < s.ConflictsBeforeSuccess {
		s.conflictCounts[k]++
		return nil, docstore.ErrConflict
	}

	updated, err := applyUpdateSet(stored, updateSet)
	if err != nil {
		return nil, err
	}
	updated.Version = stored.Version + 1
	updated.Updated = time.Now().UTC()
	s.docs[k] = updated

	copied := *updated
	copied.States = append([]types.ArtifactState(nil), updated.States...)
	return &copied, nil
}

// Get returns the current stored document for inspection in tests.
func (s *Store) Get(identity types.ArtifactIdentity) (*types.ArtifactDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key(identity)]
	return doc, ok
}

// WriteRaw records rec for inspection by tests.
func (s *Store) WriteRaw(ctx context.Context, rec *types.RawMessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RawMessages = append(s.RawMessages, rec)
	return nil
}

// WriteInvalid records rec for inspection by tests.
func (s *Store) WriteInvalid(ctx context.Context, rec *types.ValidationErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ValidationErrors = append(s.ValidationErrors, rec)
	return nil
}

// applyUpdateSet applies MongoDB-style dotted-path $set entries onto doc by
// round-tripping it through a generic map, matching the shape
// docstore.mkUpdateSet produces.
func applyUpdateSet(doc *types.ArtifactDocument, updateSet map[string]any) (*types.ArtifactDocument, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}

	for path, val := range updateSet {
		setDottedPath(m, path, val)
	}

	b, err = json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var updated types.ArtifactDocument
	if err := json.Unmarshal(b, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// setDottedPath sets val at the dotted path in m, creating intermediate
// objects as needed.
func setDottedPath(m map[string]any, path string, val any) {
	segs := strings.Split(path, ".")
	cur := m
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = val
}
