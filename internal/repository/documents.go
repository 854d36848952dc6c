package repository

import (
	"context"
	"fmt"

	"github.com/RishiKendai/textpair/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const documentsCollection = "textpair_documents"

type DocumentsRepository struct {
	mongoRepo *MongoRepository
}

func NewDocumentsRepository(mongoRepo *MongoRepository) *DocumentsRepository {
	return &DocumentsRepository{
		mongoRepo: mongoRepo,
	}
}

// InsertDocuments stores docs under corpus, keeping their slice order
func (r *DocumentsRepository) InsertDocuments(ctx context.Context, corpus string, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i := range docs {
		doc := docs[i]
		doc.Corpus = corpus
		if doc.Order == 0 {
			doc.Order = int64(i + 1)
		}
		batch[i] = doc
	}
	if err := r.mongoRepo.InsertMany(ctx, documentsCollection, batch, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}
	return nil
}

// GetDocumentsByCorpus returns the documents of corpus ordered by their
// stored order, then by id
func (r *DocumentsRepository) GetDocumentsByCorpus(ctx context.Context, corpus string) ([]models.Document, error) {
	filter := bson.M{"corpus": corpus}
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "docId", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, documentsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	return docs, nil
}

func (r *DocumentsRepository) CountDocumentsByCorpus(ctx context.Context, corpus string) (int64, error) {
	filter := bson.M{"corpus": corpus}

	count, err := r.mongoRepo.CountDocuments(ctx, documentsCollection, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	return count, nil
}
