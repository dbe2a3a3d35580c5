package vehicles

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estimator computes the anticipated cost of a rental window. Pricing proper
// lives in a separate service; this is the fallback used when quoting a
// reservation at booking time.
type Estimator interface {
	Estimate(hourlyRate decimal.Decimal, pickupAt time.Time, returnAt *time.Time) decimal.Decimal
}

type hourlyEstimator struct{}

// NewHourlyEstimator returns the default per-hour estimator.
func NewHourlyEstimator() Estimator {
	return hourlyEstimator{}
}

// Estimate charges whole hours, rounding partial hours up. Open-ended
// rentals are quoted at a single hour; the final cost is settled at return
// approval.
func (hourlyEstimator) Estimate(hourlyRate decimal.Decimal, pickupAt time.Time, returnAt *time.Time) decimal.Decimal {
	hours := int64(1)
	if returnAt != nil && returnAt.After(pickupAt) {
		duration := returnAt.Sub(pickupAt)
		hours = int64(duration / time.Hour)
		if duration%time.Hour != 0 {
			hours++
		}
		if hours < 1 {
			hours = 1
		}
	}
	return hourlyRate.Mul(decimal.NewFromInt(hours))
}
