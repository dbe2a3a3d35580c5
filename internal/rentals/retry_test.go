package rentals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andresvelez/carshare-backend/pkg/config"
)

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:      3,
		InitialBackoffMS: 1,
		Multiplier:       2.0,
	}
}

func exclusionErr() error {
	return &pgconn.PgError{Code: "23P01", ConstraintName: ConstraintVehiclePeriod}
}

func TestCoordinatorResolvesAfterViolations(t *testing.T) {
	coordinator := NewCoordinator(testRetryConfig(), nil)

	attempts := 0
	err := coordinator.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return exclusionErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestCoordinatorExhaustsAttempts(t *testing.T) {
	coordinator := NewCoordinator(testRetryConfig(), nil)

	attempts := 0
	err := coordinator.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return exclusionErr()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if !isRetryableConstraint(err) {
		t.Fatalf("expected constraint error to surface, got %v", err)
	}
}

func TestCoordinatorDoesNotRetryOtherErrors(t *testing.T) {
	coordinator := NewCoordinator(testRetryConfig(), nil)

	boom := errors.New("boom")
	attempts := 0
	err := coordinator.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("unexpected error %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestCoordinatorRetriesIdempotencyConstraint(t *testing.T) {
	coordinator := NewCoordinator(testRetryConfig(), nil)

	attempts := 0
	err := coordinator.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return &pgconn.PgError{Code: "23505", ConstraintName: ConstraintRenterIdempotency}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestBackoffWithinJitterBounds(t *testing.T) {
	cfg := config.RetryConfig{MaxAttempts: 3, InitialBackoffMS: 100, Multiplier: 2.0}
	coordinator := NewCoordinator(cfg, nil)

	backoff := coordinator.backoff()
	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	for i, base := range expected {
		delay, stop := backoff.Next()
		if stop {
			t.Fatalf("backoff stopped early at step %d", i)
		}
		low := time.Duration(float64(base) * 0.75)
		high := time.Duration(float64(base) * 1.25)
		if delay < low || delay > high {
			t.Fatalf("step %d delay %v outside [%v, %v]", i, delay, low, high)
		}
	}
	if _, stop := backoff.Next(); !stop {
		t.Fatalf("backoff should stop after max attempts")
	}
}
