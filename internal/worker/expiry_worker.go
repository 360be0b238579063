package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
)

// maxSweepRounds bounds one tick when every round comes back full.
const maxSweepRounds = 20

// Sweeper finalizes in-progress attempts whose deadline has passed.
type Sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// ExpiryWorker periodically auto-submits overdue attempts. Running several
// instances is safe: a Redis lease lets one of them sweep per interval, and
// the sweep itself is idempotent.
type ExpiryWorker struct {
	rdb        *redis.Client
	sweeper    Sweeper
	interval   time.Duration
	batch      int
	instanceID string
	log        zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker. A nil rdb sweeps without a lease.
func NewExpiryWorker(rdb *redis.Client, sweeper Sweeper, interval time.Duration, batch int, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		rdb:        rdb,
		sweeper:    sweeper,
		interval:   interval,
		batch:      batch,
		instanceID: uuid.NewString(),
		log:        log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start runs the sweep every interval until ctx is done. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info().Msg("Expiry sweep disabled")
		return
	}
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			if !w.acquire(ctx) {
				continue
			}
			w.sweep(ctx)
		}
	}
}

// acquire takes the sweep lease for one interval. It is never released
// early, so a second instance skips the same tick.
func (w *ExpiryWorker) acquire(ctx context.Context) bool {
	if w.rdb == nil {
		return true
	}
	ok, err := w.rdb.SetNX(ctx, config.CacheKey.ExpirySweepLockKey(), w.instanceID, w.interval).Result()
	if err != nil {
		// Without Redis every instance sweeps; finishing an attempt twice is a no-op.
		w.log.Warn().Err(err).Msg("Failed to take sweep lease, sweeping anyway")
		return true
	}
	return ok
}

// sweep keeps finalizing batches while they come back full.
func (w *ExpiryWorker) sweep(ctx context.Context) int {
	total := 0
	for range maxSweepRounds {
		n, err := w.sweeper.SweepExpired(ctx, w.batch)
		total += n
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
			break
		}
		if n < w.batch {
			break
		}
	}

	if total > 0 {
		w.log.Info().Int("count", total).Msg("Auto-submitted expired attempts")
	}
	return total
}
