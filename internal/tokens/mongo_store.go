package tokens

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type tokenDocument struct {
	Key      string    `bson:"_id"`
	Record   `bson:",inline"`
	ExpireAt time.Time `bson:"expireAt"`
}

// MongoStore keeps records in a collection. Expiry is enforced on read and by a
// TTL index on expireAt (see EnsureIndexes), which Mongo applies lazily.
type MongoStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col, now: time.Now}
}

// EnsureIndexes creates the TTL index. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expireAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (s *MongoStore) Get(ctx context.Context, key string) (*Record, error) {
	var doc tokenDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	// the TTL monitor runs about once a minute; treat stale documents as missing
	if s.now().After(doc.ExpireAt) {
		_, _ = s.col.DeleteOne(ctx, bson.M{"_id": key})
		return nil, nil
	}
	rec := doc.Record
	return &rec, nil
}

func (s *MongoStore) Put(ctx context.Context, key string, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	doc := tokenDocument{Key: key, Record: *rec, ExpireAt: s.now().UTC().Add(ttl)}
	_, err := s.col.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Forget(ctx context.Context, key string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": key})
	return err
}
