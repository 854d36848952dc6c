package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/textpair/internal/metrics"
	"github.com/RishiKendai/textpair/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Executor runs one comparison request
type Executor interface {
	Execute(ctx context.Context, req models.RunRequest) (*models.RunReport, error)
}

// ConsumerConfig names the run request stream and the group member reading
// it. Zero intervals take the defaults.
type ConsumerConfig struct {
	StreamKey string
	Group     string
	Name      string
	// Retention is how long run requests stay in the stream
	Retention time.Duration
	// RunTimeout bounds one execution attempt
	RunTimeout time.Duration
	// ClaimIdle is how long a request may sit unacknowledged with another
	// member before it is taken over
	ClaimIdle  time.Duration
	ClaimEvery time.Duration
	TrimEvery  time.Duration
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	if cfg.ClaimEvery <= 0 {
		cfg.ClaimEvery = 30 * time.Second
	}
	if cfg.TrimEvery <= 0 {
		cfg.TrimEvery = time.Hour
	}
	return cfg
}

// Consumer executes run requests read from a Redis stream consumer group.
// A request is acknowledged once its run completes, is dead-lettered, or
// turns out to be malformed; any other failure leaves it pending so a later
// reclaim retries it under the same run id.
type Consumer struct {
	client   redis.Cmdable
	cfg      ConsumerConfig
	executor Executor
	retry    *RetryHandler
}

func NewConsumer(client redis.Cmdable, cfg ConsumerConfig, executor Executor, retry *RetryHandler) *Consumer {
	return &Consumer{
		client:   client,
		cfg:      cfg.withDefaults(),
		executor: executor,
		retry:    retry,
	}
}

// Start joins the group, takes over abandoned run requests, and then
// executes new ones until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.joinGroup(ctx); err != nil {
		log.Warn().Err(err).Str("group", c.cfg.Group).Msg("Failed to join consumer group")
	}
	c.reclaim(ctx)
	go c.trimLoop(ctx)

	log.Info().
		Str("stream", c.cfg.StreamKey).
		Str("consumer", c.cfg.Name).
		Dur("retention", c.cfg.Retention).
		Msg("Consuming run requests")

	reclaimTicker := time.NewTicker(c.cfg.ClaimEvery)
	defer reclaimTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reclaimTicker.C:
			c.reclaim(ctx)
		default:
		}

		if err := c.readNew(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("stream", c.cfg.StreamKey).Msg("Failed to read run requests")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// joinGroup creates the group at the stream tail, so only requests added
// after the first start are consumed
func (c *Consumer) joinGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.StreamKey, c.cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *Consumer) readNew(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.StreamKey, ">"},
		Count:    10,
		Block:    time.Second,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, s := range streams {
		for i := range s.Messages {
			_ = c.handle(ctx, &s.Messages[i])
		}
	}
	return nil
}

// reclaim takes over run requests another member read but never
// acknowledged, typically because it crashed mid-run
func (c *Consumer) reclaim(ctx context.Context) {
	start := "0-0"
	for ctx.Err() == nil {
		entries, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.StreamKey,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			MinIdle:  c.cfg.ClaimIdle,
			Start:    start,
			Count:    50,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Warn().Err(err).Str("stream", c.cfg.StreamKey).Msg("Failed to reclaim run requests")
			}
			return
		}

		for i := range entries {
			entry := &entries[i]
			log.Info().
				Str("runId", runIDOf(entry)).
				Str("entryId", entry.ID).
				Msg("Reclaimed abandoned run request")
			metrics.ObserveStreamRequest("reclaimed")
			_ = c.handle(ctx, entry)
		}

		if next == "" || next == "0-0" {
			return
		}
		start = next
	}
}

// handle executes the run request in entry with retries
func (c *Consumer) handle(ctx context.Context, entry *redis.XMessage) error {
	msg := NewStreamMessage(entry)
	req, err := ParseRunRequest(msg)
	if err != nil {
		log.Error().Err(err).Str("entryId", entry.ID).Msg("Dropping malformed run request")
		metrics.ObserveStreamRequest("malformed")
		_ = c.acknowledge(ctx, entry.ID, "")
		return err
	}
	// every attempt reuses the run id, so retries update the same report
	if req.RunID == "" {
		req.RunID = entry.ID
	}

	runLog := log.With().Str("runId", req.RunID).Str("entryId", entry.ID).Logger()
	runLog.Info().Str("source", req.SourceCorpus).Str("target", req.TargetCorpus).Msg("Executing run request")

	err = c.retry.RetryWithBackoff(ctx, func() error {
		return c.execute(ctx, req)
	}, entry.ID, msg.Values())

	switch {
	case err == nil:
		metrics.ObserveStreamRequest("completed")
		return c.acknowledge(ctx, entry.ID, req.RunID)
	case errors.Is(err, ErrDeadLettered):
		metrics.ObserveStreamRequest("dead_lettered")
		_ = c.acknowledge(ctx, entry.ID, req.RunID)
		return err
	default:
		runLog.Warn().Err(err).Msg("Run request left pending for reclaim")
		metrics.ObserveStreamRequest("pending")
		return err
	}
}

// execute runs one attempt. A run cut short by its own timeout counts as a
// failed attempt; one cut short by shutdown does not.
func (c *Consumer) execute(ctx context.Context, req models.RunRequest) error {
	runCtx := ctx
	if c.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.RunTimeout)
		defer cancel()
	}
	report, err := c.executor.Execute(runCtx, req)
	if err != nil {
		return err
	}
	if report != nil && report.Summary.Canceled && ctx.Err() == nil {
		return fmt.Errorf("run %s exceeded its timeout of %s", req.RunID, c.cfg.RunTimeout)
	}
	return nil
}

func (c *Consumer) trimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TrimEvery)
	defer ticker.Stop()
	for {
		if err := c.trim(ctx, time.Now()); err != nil {
			log.Warn().Err(err).Str("stream", c.cfg.StreamKey).Msg("Failed to trim run requests")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// trim drops run requests added before now minus the retention window
func (c *Consumer) trim(ctx context.Context, now time.Time) error {
	if c.cfg.Retention <= 0 {
		return nil
	}
	cutoff := now.Add(-c.cfg.Retention)
	minID := fmt.Sprintf("%d-0", cutoff.UnixMilli())
	trimmed, err := c.client.XTrimMinIDApprox(ctx, c.cfg.StreamKey, minID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}
	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Time("cutoff", cutoff).
			Msg("Trimmed expired run requests")
	}
	return nil
}

func (c *Consumer) acknowledge(ctx context.Context, entryID, runID string) error {
	if err := c.client.XAck(ctx, c.cfg.StreamKey, c.cfg.Group, entryID).Err(); err != nil {
		log.Error().Err(err).Str("runId", runID).Str("entryId", entryID).Msg("Failed to acknowledge run request")
		return err
	}
	return nil
}
