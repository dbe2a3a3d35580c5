package vehicles

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/enums"
	pkgerrors "github.com/andresvelez/carshare-backend/pkg/errors"
	"github.com/andresvelez/carshare-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:vehicles_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Vehicle{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil, "carshare-test")
	svc, err := NewService(NewRepository(db), &testTxRunner{db: db}, outboxSvc)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, db
}

func TestListEmitsVehicleListed(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	vehicle, err := svc.List(ctx, ListInput{OwnerID: ownerID, HourlyRate: decimal.NewFromInt(25)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !vehicle.Active {
		t.Fatal("new vehicle must be active")
	}

	var event models.OutboxEvent
	if err := db.First(&event).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.EventType != enums.EventVehicleListed {
		t.Fatalf("unexpected event type %s", event.EventType)
	}
	if event.AggregateID != vehicle.ID.String() {
		t.Fatalf("unexpected aggregate id %s", event.AggregateID)
	}
}

func TestRetireChecksOwnershipAndState(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	vehicle, err := svc.List(ctx, ListInput{OwnerID: ownerID, HourlyRate: decimal.NewFromInt(25)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if _, err := svc.Retire(ctx, vehicle.ID, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	retired, err := svc.Retire(ctx, vehicle.ID, ownerID)
	if err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if retired.Active {
		t.Fatal("vehicle still active after retire")
	}

	if _, err := svc.Retire(ctx, vehicle.ID, ownerID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	var count int64
	if err := db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventVehicleRetired).
		Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retired event, got %d", count)
	}
}

func TestHourlyEstimator(t *testing.T) {
	estimator := NewHourlyEstimator()
	rate := decimal.NewFromInt(20)
	pickup := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

	twoHours := pickup.Add(2 * time.Hour)
	if got := estimator.Estimate(rate, pickup, &twoHours); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("2h estimate: %s", got)
	}

	// Partial hours round up.
	ninetyMin := pickup.Add(90 * time.Minute)
	if got := estimator.Estimate(rate, pickup, &ninetyMin); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("90m estimate: %s", got)
	}

	// Open-ended rentals are quoted at one hour.
	if got := estimator.Estimate(rate, pickup, nil); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("open-ended estimate: %s", got)
	}
}
