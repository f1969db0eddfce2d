// Package mongo is the document-store persistence backend. Membership sets
// (delivered/seen/deleted-for) and reactions live as embedded arrays on the
// message document; $addToSet and $pull give the atomic set primitives the
// lifecycle engine relies on.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Open connects to MongoDB and returns a handle to the named database.
func Open(uri, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(database), nil
}

// EnsureIndexes creates the indexes both repositories rely on. Idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)

	_, err := db.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = db.Collection("messages").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}
