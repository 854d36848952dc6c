package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrDeadLettered marks a message that exhausted its retries and was moved
// to the dead letter stream
var ErrDeadLettered = errors.New("message moved to dead letter stream")

type RetryHandler struct {
	client        redis.Cmdable
	deadLetterKey string
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewRetryHandler(client redis.Cmdable, deadLetterKey string) *RetryHandler {
	return &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxRetries:    3,
		baseDelay:     2 * time.Second,
		maxDelay:      30 * time.Second,
	}
}

// WithBackoff overrides the retry count and delays
func (h *RetryHandler) WithBackoff(maxRetries int, baseDelay, maxDelay time.Duration) *RetryHandler {
	h.maxRetries = max(1, maxRetries)
	h.baseDelay = baseDelay
	h.maxDelay = maxDelay
	return h
}

// RetryWithBackoff calls fn until it succeeds or the retries are spent, then
// publishes the message to the dead letter stream
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, messageID string, fields map[string]interface{}) error {
	var lastErr error
	delay := h.baseDelay
	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn().
			Err(lastErr).
			Str("message_id", messageID).
			Int("attempt", attempt).
			Int("max_retries", h.maxRetries).
			Msg("Message processing failed")

		if attempt == h.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, h.maxDelay)
	}

	if err := h.deadLetter(ctx, messageID, fields, lastErr); err != nil {
		return fmt.Errorf("failed to dead-letter message after %d attempts: %w", h.maxRetries, err)
	}
	return fmt.Errorf("%w: %v", ErrDeadLettered, lastErr)
}

func (h *RetryHandler) deadLetter(ctx context.Context, messageID string, fields map[string]interface{}, cause error) error {
	values := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		values[k] = v
	}
	values["originalId"] = messageID
	values["error"] = cause.Error()
	values["failedAt"] = time.Now().UTC().Format(time.RFC3339)

	err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.deadLetterKey,
		Values: values,
	}).Err()
	if err != nil {
		return err
	}

	log.Error().
		Err(cause).
		Str("message_id", messageID).
		Str("dead_letter_stream", h.deadLetterKey).
		Msg("Message moved to dead letter stream")
	return nil
}
