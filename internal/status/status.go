package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/textpair/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix = "textpair_run_status:"
	statusTTL = 12 * time.Hour
)

var validSteps = map[models.Step]bool{
	models.StepIdle:      true,
	models.StepInitiated: true,
	models.StepStarted:   true,
	models.StepIndexing:  true,
	models.StepMatching:  true,
	models.StepWriting:   true,
	models.StepCompleted: true,
	models.StepFailed:    true,
}

// Store keeps the live step of each run in Redis
type Store struct {
	client redis.Cmdable
}

func NewStore(client redis.Cmdable) *Store {
	return &Store{client: client}
}

func Key(runID string) string {
	return keyPrefix + runID
}

func (s *Store) Update(ctx context.Context, runID string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}

	rkey := Key(runID)
	err := s.client.Set(ctx, rkey, string(step), statusTTL).Err()
	if err != nil {
		log.Error().Err(err).
			Str("step", string(step)).
			Str("runId", runID).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str("step", string(step)).
		Str("runId", runID).
		Msg("Status updated in Redis")

	return nil
}

// Get returns StepIdle when the run has no recorded status
func (s *Store) Get(ctx context.Context, runID string) (models.Step, error) {
	val, err := s.client.Get(ctx, Key(runID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.StepIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status from Redis: %w", err)
	}
	return models.Step(val), nil
}
