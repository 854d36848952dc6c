package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/textpair/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const runsCollection = "textpair_runs"

type RunsRepository struct {
	mongoRepo *MongoRepository
}

func NewRunsRepository(mongoRepo *MongoRepository) *RunsRepository {
	return &RunsRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *RunsRepository) InsertRunReport(ctx context.Context, report *models.RunReport) error {
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now

	err := r.mongoRepo.InsertOne(ctx, runsCollection, report)
	if err != nil {
		return fmt.Errorf("failed to insert run report: %w", err)
	}

	return nil
}

// UpdateRunReport replaces the status, error, output and summary of a run,
// creating the run when it was submitted without a pending report
func (r *RunsRepository) UpdateRunReport(ctx context.Context, report *models.RunReport) error {
	report.UpdatedAt = time.Now()
	filter := bson.M{"runId": report.RunID}
	update := bson.M{
		"$set": bson.M{
			"status":     report.Status,
			"error":      report.Error,
			"outputPath": report.OutputPath,
			"summary":    report.Summary,
			"updatedAt":  report.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"sourceCorpus": report.SourceCorpus,
			"targetCorpus": report.TargetCorpus,
			"createdAt":    report.UpdatedAt,
		},
	}

	if _, err := r.mongoRepo.UpdateOne(ctx, runsCollection, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to update run report: %w", err)
	}

	return nil
}

// GetRunReport returns nil, nil when no run has the id
func (r *RunsRepository) GetRunReport(ctx context.Context, runID string) (*models.RunReport, error) {
	filter := bson.M{"runId": runID}

	var report models.RunReport
	err := r.mongoRepo.FindOne(ctx, runsCollection, filter).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run report: %w", err)
	}

	return &report, nil
}
