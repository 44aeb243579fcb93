package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"certify/pkg/platform/sentinel"
)

const mongoCollection = "content_blobs"

type mongoBlob struct {
	ID          string            `bson:"_id"`
	Data        []byte            `bson:"data"`
	ContentType string            `bson:"content_type"`
	Tags        map[string]string `bson:"tags,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
}

// MongoStore keeps content in a MongoDB collection keyed by SHA-256 digest.
type MongoStore struct {
	coll    *mongo.Collection
	baseURL string
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoStore uses the content_blobs collection of db. baseURL prefixes
// addresses when building download links.
func NewMongoStore(db *mongo.Database, baseURL string) *MongoStore {
	return &MongoStore{coll: db.Collection(mongoCollection), baseURL: baseURL}
}

func (s *MongoStore) Put(ctx context.Context, data []byte, contentType string, tags map[string]string) (string, error) {
	addr := Digest(data)
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": addr},
		bson.M{"$setOnInsert": bson.M{
			"data":         data,
			"content_type": contentType,
			"tags":         tags,
			"created_at":   time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("store content %s: %w", addr, err)
	}
	return addr, nil
}

func (s *MongoStore) Get(ctx context.Context, address string) ([]byte, error) {
	var doc mongoBlob
	err := s.coll.FindOne(ctx, bson.M{"_id": address}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load content %s: %w", address, err)
	}
	return doc.Data, nil
}

func (s *MongoStore) URL(address string) string {
	return s.baseURL + "/content/" + address
}
