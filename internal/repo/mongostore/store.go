// Package mongostore is the MongoDB implementation of the reactions store.
//
// Layout: every aggregate namespace (e.g. "reactions_example.com") is one
// MongoDB collection holding two document kinds:
//
//   - kind "module":   _id = module id, with an embedded options sub-document
//     mapping option key to vote count. Counters change only through $inc.
//   - kind "reaction": _id = {m: module id, u: user id}, one per user.
//
// Token namespaces (e.g. "tokens_example.com") hold one document per user.
//
// Missing records are reported as repo.ErrNotFound, invariant violations as
// repo.ErrMalformedRecord, and refused decrements as repo.ErrNegativeCount, so
// callers can treat this package and the SQL store interchangeably.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/go-reactions-backend/internal/domain"
	"github.com/tbourn/go-reactions-backend/internal/repo"
)

const (
	kindModule   = "module"
	kindReaction = "reaction"
)

type moduleDoc struct {
	ID        string           `bson:"_id"`
	Kind      string           `bson:"kind"`
	Title     string           `bson:"title"`
	Options   map[string]int64 `bson:"options"`
	CreatedAt time.Time        `bson:"createdAt"`
	UpdatedAt time.Time        `bson:"updatedAt"`
}

type reactionKey struct {
	Module string `bson:"m"`
	User   string `bson:"u"`
}

type reactionDoc struct {
	ID        reactionKey `bson:"_id"`
	Kind      string      `bson:"kind"`
	ModuleID  string      `bson:"moduleId"`
	UserID    string      `bson:"userId"`
	Reaction  string      `bson:"reaction"`
	CreatedAt time.Time   `bson:"createdAt"`
	UpdatedAt time.Time   `bson:"updatedAt"`
}

type tokenDoc struct {
	UserID   string    `bson:"_id"`
	TokenID  string    `bson:"tokenId"`
	IssuedAt time.Time `bson:"issuedAt"`
}

// Store is a MongoDB-backed reactions store. It is safe for concurrent use.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	mu      sync.Mutex
	indexed map[string]bool
}

// Connect dials uri, verifies the connection and returns a Store bound to
// database dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return New(client, dbName), nil
}

// New wraps an existing client.
func New(client *mongo.Client, dbName string) *Store {
	return &Store{
		client:  client,
		db:      client.Database(dbName),
		indexed: make(map[string]bool),
	}
}

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// collection returns the named collection, creating its secondary indexes on
// first use.
func (s *Store) collection(ctx context.Context, name string, tokens bool) (*mongo.Collection, error) {
	c := s.db.Collection(name)

	s.mu.Lock()
	done := s.indexed[name]
	s.mu.Unlock()
	if done {
		return c, nil
	}

	var model mongo.IndexModel
	if tokens {
		model = mongo.IndexModel{Keys: bson.D{{Key: "issuedAt", Value: 1}}}
	} else {
		model = mongo.IndexModel{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "moduleId", Value: 1}, {Key: "updatedAt", Value: -1}}}
	}
	if _, err := c.Indexes().CreateOne(ctx, model); err != nil {
		return nil, fmt.Errorf("mongostore: index %s: %w", name, err)
	}

	s.mu.Lock()
	s.indexed[name] = true
	s.mu.Unlock()
	return c, nil
}

// FindModule loads a module document.
func (s *Store) FindModule(ctx context.Context, coll, moduleID string) (*domain.Module, error) {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return nil, err
	}
	var doc moduleDoc
	err = c.FindOne(ctx, bson.M{"_id": moduleID, "kind": kindModule}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModule(coll, doc)
}

// InsertModule creates an empty module document unless it exists.
func (s *Store) InsertModule(ctx context.Context, coll, moduleID string) (*domain.Module, error) {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = c.UpdateOne(ctx,
		bson.M{"_id": moduleID},
		bson.M{"$setOnInsert": bson.M{
			"kind":      kindModule,
			"title":     "",
			"options":   bson.M{},
			"createdAt": now,
			"updatedAt": now,
		}},
		options.Update().SetUpsert(true),
	)
	// A concurrent upsert of the same _id may lose the race; the document exists either way.
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}
	return s.FindModule(ctx, coll, moduleID)
}

// SetModuleTitle sets the module title, creating the module if needed.
func (s *Store) SetModuleTitle(ctx context.Context, coll, moduleID, title string) error {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = c.UpdateOne(ctx,
		bson.M{"_id": moduleID},
		bson.M{
			"$set":         bson.M{"title": title, "updatedAt": now},
			"$setOnInsert": bson.M{"kind": kindModule, "options": bson.M{}, "createdAt": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// RemoveModule deletes the module document and every reaction on it.
func (s *Store) RemoveModule(ctx context.Context, coll, moduleID string) error {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return err
	}
	if _, err := c.DeleteMany(ctx, bson.M{"kind": kindReaction, "moduleId": moduleID}); err != nil {
		return err
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": moduleID, "kind": kindModule})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// IncrementOption applies $inc to options.<option>. Positive deltas upsert
// the module; negative deltas only match when the counter stays >= 0.
func (s *Store) IncrementOption(ctx context.Context, coll, moduleID, option string, delta int64) error {
	if delta == 0 {
		return nil
	}
	field, err := optionField(option)
	if err != nil {
		return err
	}
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	if delta > 0 {
		_, err := c.UpdateOne(ctx,
			bson.M{"_id": moduleID},
			bson.M{
				"$inc":         bson.M{field: delta},
				"$set":         bson.M{"updatedAt": now},
				"$setOnInsert": bson.M{"kind": kindModule, "title": "", "createdAt": now},
			},
			options.Update().SetUpsert(true),
		)
		if mongo.IsDuplicateKeyError(err) {
			// Lost an upsert race; the document now exists, so retry as a plain update.
			_, err = c.UpdateOne(ctx, bson.M{"_id": moduleID}, bson.M{"$inc": bson.M{field: delta}, "$set": bson.M{"updatedAt": now}})
		}
		return err
	}

	res, err := c.UpdateOne(ctx,
		bson.M{"_id": moduleID, "kind": kindModule, field: bson.M{"$gte": -delta}},
		bson.M{"$inc": bson.M{field: delta}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repo.ErrNegativeCount
	}
	return nil
}

// ReplaceCounters sets the given option counts in one update.
func (s *Store) ReplaceCounters(ctx context.Context, coll, moduleID string, counts map[string]int64) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range counts {
		if v < 0 {
			return repo.ErrMalformedRecord
		}
		field, err := optionField(k)
		if err != nil {
			return err
		}
		set[field] = v
	}
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return err
	}
	_, err = c.UpdateOne(ctx,
		bson.M{"_id": moduleID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"kind": kindModule, "title": "", "createdAt": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

// FindReaction loads a user's reaction document.
func (s *Store) FindReaction(ctx context.Context, coll, moduleID, userID string) (*domain.UserReaction, error) {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return nil, err
	}
	var doc reactionDoc
	err = c.FindOne(ctx, bson.M{"_id": reactionKey{Module: moduleID, User: userID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.Kind != kindReaction || doc.Reaction == "" {
		return nil, fmt.Errorf("%w: reaction document for user %q on module %q", repo.ErrMalformedRecord, userID, moduleID)
	}
	return &domain.UserReaction{
		Collection: coll,
		ModuleID:   moduleID,
		UserID:     userID,
		Reaction:   doc.Reaction,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

// UpsertReaction sets the user's reaction.
func (s *Store) UpsertReaction(ctx context.Context, coll, moduleID, userID, reaction string) error {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = c.UpdateOne(ctx,
		bson.M{"_id": reactionKey{Module: moduleID, User: userID}},
		bson.M{
			"$set":         bson.M{"reaction": reaction, "updatedAt": now},
			"$setOnInsert": bson.M{"kind": kindReaction, "moduleId": moduleID, "userId": userID, "createdAt": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// RemoveReaction deletes the user's reaction document.
func (s *Store) RemoveReaction(ctx context.Context, coll, moduleID, userID string) error {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return err
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": reactionKey{Module: moduleID, User: userID}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// CountReactions groups the module's reaction documents by option.
func (s *Store) CountReactions(ctx context.Context, coll, moduleID string) (map[string]int64, error) {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return nil, err
	}
	cur, err := c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"kind": kindReaction, "moduleId": moduleID}}},
		{{Key: "$group", Value: bson.M{"_id": "$reaction", "n": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			Reaction string `bson:"_id"`
			N        int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.Reaction] = row.N
	}
	return out, cur.Err()
}

// Stats counts modules and reactions in one namespace.
func (s *Store) Stats(ctx context.Context, coll string) (domain.CollectionStats, error) {
	c, err := s.collection(ctx, coll, false)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	var out domain.CollectionStats
	if out.Modules, err = c.CountDocuments(ctx, bson.M{"kind": kindModule}); err != nil {
		return domain.CollectionStats{}, err
	}
	if out.Reactions, err = c.CountDocuments(ctx, bson.M{"kind": kindReaction}); err != nil {
		return domain.CollectionStats{}, err
	}
	if out.Reactions == 0 {
		return out, nil
	}
	var latest reactionDoc
	err = c.FindOne(ctx, bson.M{"kind": kindReaction},
		options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}})).Decode(&latest)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	out.LastActivity = &latest.UpdatedAt
	return out, nil
}

// DropCollection drops one namespace.
func (s *Store) DropCollection(ctx context.Context, coll string) error {
	s.mu.Lock()
	delete(s.indexed, coll)
	s.mu.Unlock()
	return s.db.Collection(coll).Drop(ctx)
}

// DropAll drops the whole database.
func (s *Store) DropAll(ctx context.Context) error {
	s.mu.Lock()
	s.indexed = make(map[string]bool)
	s.mu.Unlock()
	return s.db.Drop(ctx)
}

// FindToken loads the user's token document.
func (s *Store) FindToken(ctx context.Context, coll, userID string) (*domain.VoteToken, error) {
	c, err := s.collection(ctx, coll, true)
	if err != nil {
		return nil, err
	}
	var doc tokenDoc
	err = c.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if doc.TokenID == "" || doc.IssuedAt.IsZero() {
		return nil, repo.ErrMalformedRecord
	}
	return &domain.VoteToken{Collection: coll, UserID: userID, TokenID: doc.TokenID, IssuedAt: doc.IssuedAt}, nil
}

// SaveToken replaces the user's token document.
func (s *Store) SaveToken(ctx context.Context, tok domain.VoteToken) error {
	c, err := s.collection(ctx, tok.Collection, true)
	if err != nil {
		return err
	}
	doc := tokenDoc{UserID: tok.UserID, TokenID: tok.TokenID, IssuedAt: tok.IssuedAt.UTC()}
	_, err = c.ReplaceOne(ctx, bson.M{"_id": tok.UserID}, doc, options.Replace().SetUpsert(true))
	return err
}

// PurgeTokens deletes old tokens from every collection named with prefix.
func (s *Store) PurgeTokens(ctx context.Context, prefix string, before time.Time) (int64, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, name := range names {
		res, err := s.db.Collection(name).DeleteMany(ctx, bson.M{"issuedAt": bson.M{"$lt": before}})
		if err != nil {
			return total, err
		}
		total += res.DeletedCount
	}
	return total, nil
}

// optionField returns the dotted field path for an option key, refusing keys
// that would address a different path.
func optionField(option string) (string, error) {
	if option == "" || strings.ContainsAny(option, ".$") {
		return "", fmt.Errorf("%w: option key %q", repo.ErrMalformedRecord, option)
	}
	return "options." + option, nil
}

func toModule(coll string, doc moduleDoc) (*domain.Module, error) {
	opts := make(map[string]int64, len(doc.Options))
	for k, v := range doc.Options {
		if k == "" || v < 0 {
			return nil, fmt.Errorf("%w: module %q option %q has %d votes", repo.ErrMalformedRecord, doc.ID, k, v)
		}
		opts[k] = v
	}
	return &domain.Module{
		Collection: coll,
		ModuleID:   doc.ID,
		Title:      doc.Title,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
		Options:    opts,
	}, nil
}
