package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/therapy-booking/internal/retry"
	"github.com/p-blackswan/therapy-booking/internal/store"
)

// DeadLetterStore is the part of the store the Replayer needs.
type DeadLetterStore interface {
	ListRetryable(ctx context.Context, limit int) ([]*store.DeadLetter, error)
	IncrementRetry(ctx context.Context, id string, nextRetryAt int64, lastErr string) error
	ResolveDeadLetter(ctx context.Context, id string) error
}

// ReplayConfig configures a Replayer.
type ReplayConfig struct {
	BatchSize  int
	MaxRetries int
	Backoff    retry.Config
}

// DefaultReplayConfig returns replay defaults: batches of 100, five replays
// per event, minute-scale backoff capped at an hour.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		BatchSize:  100,
		MaxRetries: 5,
		Backoff: retry.Config{
			BaseDelay: time.Minute,
			MaxDelay:  time.Hour,
		},
	}
}

// Replayer re-sends dead-lettered events.
type Replayer struct {
	store  DeadLetterStore
	sink   Sink
	cfg    ReplayConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewReplayer creates a Replayer.
func NewReplayer(st DeadLetterStore, sink Sink, cfg ReplayConfig, logger zerolog.Logger) *Replayer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 5
	}
	return &Replayer{
		store:  st,
		sink:   sink,
		cfg:    cfg,
		logger: logger.With().Str("component", "analytics_replay").Logger(),
		now:    time.Now,
	}
}

// ReplayOnce processes one batch of due dead letters and returns how many
// were delivered.
func (r *Replayer) ReplayOnce(ctx context.Context) (int, error) {
	due, err := r.store.ListRetryable(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing dead letters: %w", err)
	}

	delivered := 0
	for _, dl := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		var ev Event
		if err := json.Unmarshal([]byte(dl.Payload), &ev); err != nil {
			r.logger.Error().Err(err).Str("id", dl.ID).Msg("undecodable dead letter, giving up")
			if err := r.store.IncrementRetry(ctx, dl.ID, 0, err.Error()); err != nil {
				r.logger.Error().Err(err).Str("id", dl.ID).Msg("failed to update dead letter")
			}
			continue
		}

		if sendErr := r.sink.Send(ctx, ev); sendErr != nil {
			next := int64(0)
			if dl.RetryCount+1 < r.cfg.MaxRetries {
				next = r.now().Add(r.cfg.Backoff.Backoff(dl.RetryCount)).UnixMilli()
			}
			r.logger.Warn().Err(sendErr).
				Str("id", dl.ID).
				Int("retry_count", dl.RetryCount+1).
				Bool("gave_up", next == 0).
				Msg("dead letter replay failed")
			if err := r.store.IncrementRetry(ctx, dl.ID, next, sendErr.Error()); err != nil {
				r.logger.Error().Err(err).Str("id", dl.ID).Msg("failed to update dead letter")
			}
			continue
		}

		if err := r.store.ResolveDeadLetter(ctx, dl.ID); err != nil {
			r.logger.Error().Err(err).Str("id", dl.ID).Msg("failed to resolve dead letter")
			continue
		}
		delivered++
	}

	if delivered > 0 {
		r.logger.Info().Int("delivered", delivered).Int("due", len(due)).Msg("replayed dead letters")
	}
	return delivered, nil
}

// Run calls ReplayOnce every interval until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReplayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("dead letter replay failed")
			}
		}
	}
}
