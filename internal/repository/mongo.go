package repository

import (
	"context"
	"fmt"

	mongoInfra "github.com/RishiKendai/textpair/internal/infra/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(client *mongoInfra.Client) *MongoRepository {
	return &MongoRepository{
		db: client.Database,
	}
}

func (r *MongoRepository) InsertOne(ctx context.Context, collection string, document interface{}, opts ...*options.InsertOneOptions) error {
	_, err := r.db.Collection(collection).InsertOne(ctx, document, opts...)
	return err
}

func (r *MongoRepository) InsertMany(ctx context.Context, collection string, documents []interface{}, opts ...*options.InsertManyOptions) error {
	_, err := r.db.Collection(collection).InsertMany(ctx, documents, opts...)
	return err
}

func (r *MongoRepository) UpdateOne(ctx context.Context, collection string, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return r.db.Collection(collection).UpdateOne(ctx, filter, update, opts...)
}

func (r *MongoRepository) FindOne(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
	return r.db.Collection(collection).FindOne(ctx, filter, opts...)
}

func (r *MongoRepository) FindMany(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return r.db.Collection(collection).Find(ctx, filter, opts...)
}

func (r *MongoRepository) CountDocuments(ctx context.Context, collection string, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return r.db.Collection(collection).CountDocuments(ctx, filter, opts...)
}

// EnsureIndexes creates the indexes the repositories query by
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	docs := r.db.Collection(documentsCollection).Indexes()
	if _, err := docs.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "corpus", Value: 1}, {Key: "order", Value: 1}, {Key: "docId", Value: 1}},
		Options: options.Index().SetName("corpus_order_docId"),
	}); err != nil {
		return fmt.Errorf("failed to create documents index: %w", err)
	}
	runs := r.db.Collection(runsCollection).Indexes()
	if _, err := runs.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "runId", Value: 1}},
		Options: options.Index().SetName("runId").SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create runs index: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetCollection(collectionName string) *mongo.Collection {
	return r.db.Collection(collectionName)
}
