// Package mongostore is the go.mongodb.org/mongo-driver-backed
// docstore.Store, implementing the find_one_and_update / collation
// semantics of spec §4.7.2 and §4.7.f.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/redhatci/kaijs/internal/docstore"
	"github.com/redhatci/kaijs/internal/types"
)

// numericOrderingCollation matches every read/write in this package: a
// (type, aid) unique index and the writer's re-reads all need "simple"
// locale with numeric ordering so string-encoded numeric ids sort and
// compare the way an integer would.
var numericOrderingCollation = &options.Collation{Locale: "simple", NumericOrdering: true}

// Store is a docstore.Store backed by MongoDB, owning all three logical
// collections named in spec §6.3: "artifacts" for the OCC-managed writer
// path, plus "raw-messages" and "validation-errors" for the loader's
// always-write and invalid-sink records.
type Store struct {
	collection       *mongo.Collection
	rawMessages      *mongo.Collection
	validationErrors *mongo.Collection
	now              func() time.Time
}

// New builds a Store over database's three logical collections.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		collection:       db.Collection("artifacts"),
		rawMessages:      db.Collection("raw-messages"),
		validationErrors: db.Collection("validation-errors"),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique (type, aid) index (numericOrdering
// collation) and the expire_at TTL index named in spec §6.3, plus the
// validation-errors TTL index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "type", Value: 1}, {Key: "aid", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(numericOrderingCollation),
		},
		{
			Keys:    bson.D{{Key: "expire_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return err
	}
	_, err = s.validationErrors.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expire_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

// WriteRaw upserts rec into raw-messages, keyed by its spool id so a replay
// of the same envelope overwrites rather than duplicates.
func (s *Store) WriteRaw(ctx context.Context, rec *types.RawMessageRecord) error {
	_, err := s.rawMessages.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: write_raw(%s): %w", rec.ID, err)
	}
	return nil
}

// WriteInvalid upserts rec into validation-errors, the TTL-15-day invalid
// sink of spec §6.3/§7.
func (s *Store) WriteInvalid(ctx context.Context, rec *types.ValidationErrorRecord) error {
	_, err := s.validationErrors.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: write_invalid(%s): %w", rec.ID, err)
	}
	return nil
}

// FindOrCreate implements spec §4.7.2: find_one_and_update keyed on
// (type, aid), $setOnInsert-ing a fresh document at _version=1 with a
// deterministic "<type>-<aid>" id (the same docId scheme the search-index
// parent document uses, per spec §3.4 — reusing it here keeps the document
// store's primary key predictable instead of an opaque Mongo ObjectID).
func (s *Store) FindOrCreate(ctx context.Context, identity types.ArtifactIdentity) (*types.ArtifactDocument, error) {
	if !identity.Type.IsValid() {
		return nil, fmt.Errorf("mongostore: invalid artifact type %q", identity.Type)
	}

	filter := bson.M{"type": identity.Type, "aid": identity.ID}
	now := s.now()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":      docID(identity),
			"type":     identity.Type,
			"aid":      identity.ID,
			"_version": int64(1),
			"states":   bson.A{},
			"_updated": now,
			"_created": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetCollation(numericOrderingCollation)

	var doc types.ArtifactDocument
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("mongostore: find_or_create(%s/%s): %w", identity.Type, identity.ID, err)
	}
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// CompareAndSwap implements spec §4.7.f: find_one_and_update filtered on
// (_id, _version), incrementing _version and applying update_set plus
// _updated. A filter miss (a concurrent writer already advanced _version)
// surfaces as docstore.ErrConflict.
func (s *Store) CompareAndSwap(ctx context.Context, current *types.ArtifactDocument, updateSet map[string]any) (*types.ArtifactDocument, error) {
	filter := bson.M{"_id": current.ID, "_version": current.Version}
	set := bson.M{"_updated": s.now()}
	for path, val := range updateSet {
		set[path] = val
	}
	update := bson.M{
		"$inc": bson.M{"_version": int64(1)},
		"$set": set,
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetCollation(numericOrderingCollation)

	var doc types.ArtifactDocument
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: compare_and_swap(%s): %w", current.ID, err)
	}
	return &doc, nil
}

func docID(identity types.ArtifactIdentity) string {
	return string(identity.Type) + "-" + identity.ID
}

func validateDocument(doc *types.ArtifactDocument) error {
	if doc.ID == "" || !doc.Type.IsValid() || doc.AID == "" {
		return fmt.Errorf("mongostore: find_or_create returned an invalid document: %+v", doc)
	}
	return nil
}

var _ docstore.Store = (*Store)(nil)
