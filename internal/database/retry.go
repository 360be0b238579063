package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// retry runs fn until it succeeds, ctx ends or attempts run out. The wait
// doubles after each failure. Containers often start before their database.
func retry(ctx context.Context, log zerolog.Logger, what string, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	wait := backoff
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn().Err(err).
			Str("target", what).
			Int("attempt", i).
			Dur("retry_in", wait).
			Msg("Connection failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
