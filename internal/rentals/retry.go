package rentals

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/andresvelez/carshare-backend/pkg/config"
	"github.com/andresvelez/carshare-backend/pkg/db"
	"github.com/andresvelez/carshare-backend/pkg/logger"
)

// Coordinator re-runs a storage operation when it loses a booking race. Only
// errors naming one of the rentals constraints are retried; everything else
// surfaces immediately. The exclusion constraint stays the single arbiter of
// conflicts, which is what makes a blind re-run safe: a failed attempt has
// made no visible change.
type Coordinator struct {
	cfg  config.RetryConfig
	logg *logger.Logger
}

// NewCoordinator builds a retry coordinator from the configured policy.
func NewCoordinator(cfg config.RetryConfig, logg *logger.Logger) *Coordinator {
	return &Coordinator{cfg: cfg, logg: logg}
}

// Do runs op, retrying constraint-violation failures with exponential backoff
// and ±25% jitter up to the configured attempt count. The last error is
// returned once attempts are exhausted.
func (c *Coordinator) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !isRetryableConstraint(err) {
			return err
		}
		if c.logg != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			}), "booking race lost, retrying")
		}
		return retry.RetryableError(err)
	})
}

// backoff produces initial * multiplier^(attempt-1), jittered uniformly by
// ±25%, and stops once MaxAttempts operations have run.
func (c *Coordinator) backoff() retry.Backoff {
	initial := float64(c.cfg.InitialBackoff())
	multiplier := c.cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		if attempt >= maxAttempts {
			return 0, true
		}
		base := initial * math.Pow(multiplier, float64(attempt-1))
		jitter := 1 + (rand.Float64()*0.5 - 0.25)
		return time.Duration(base * jitter), false
	})
}

func isRetryableConstraint(err error) bool {
	return db.IsExclusionViolation(err, ConstraintVehiclePeriod) ||
		db.IsUniqueViolation(err, ConstraintRenterIdempotency)
}
