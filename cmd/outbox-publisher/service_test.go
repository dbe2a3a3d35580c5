package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andresvelez/carshare-backend/pkg/config"
	"github.com/andresvelez/carshare-backend/pkg/db/models"
	"github.com/andresvelez/carshare-backend/pkg/enums"
	"github.com/andresvelez/carshare-backend/pkg/logger"
	"github.com/andresvelez/carshare-backend/pkg/outbox"
	"github.com/andresvelez/carshare-backend/pkg/outbox/payloads"
	"github.com/andresvelez/carshare-backend/pkg/outbox/registry"
)

func TestProcessBatchPublishesWithOrderingKey(t *testing.T) {
	event := stagedEvent(t, "42")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedFor(event)}, &fakeDLQRepo{}, nil)

	if err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected the row marked published, got %v", repo.published)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.OrderingKey != "42" {
		t.Fatalf("ordering key should carry the aggregate id, got %q", msg.OrderingKey)
	}
	if msg.Attributes["event_type"] != string(enums.EventRentalConfirmed) {
		t.Fatalf("unexpected event_type attribute: %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != "42" {
		t.Fatalf("unexpected aggregate_id attribute: %q", msg.Attributes["aggregate_id"])
	}
}

func TestProcessBatchPreservesPerAggregateOrder(t *testing.T) {
	// Two aggregates interleaved; within each aggregate the publish order
	// must match creation order.
	var events []models.OutboxEvent
	for i := 0; i < 3; i++ {
		events = append(events, stagedEvent(t, "7"), stagedEvent(t, "9"))
	}
	for i := range events {
		events[i].Headers["row_id"] = events[i].ID.String()
	}
	repo := &fakeRepo{events: events}
	pub := &fakePublisher{}
	for range events {
		pub.results = append(pub.results, fakePublishResult{})
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedFor(events[0])}, &fakeDLQRepo{}, nil)

	if err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != len(events) {
		t.Fatalf("expected %d publishes, got %d", len(events), len(pub.messages))
	}

	wantByKey := map[string][]string{}
	for _, event := range events {
		wantByKey[event.AggregateID] = append(wantByKey[event.AggregateID], event.ID.String())
	}
	gotByKey := map[string][]string{}
	for _, msg := range pub.messages {
		gotByKey[msg.OrderingKey] = append(gotByKey[msg.OrderingKey], msg.Attributes["row_id"])
	}
	for key, want := range wantByKey {
		got := gotByKey[key]
		if len(got) != len(want) {
			t.Fatalf("aggregate %s: expected %d publishes, got %d", key, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("aggregate %s: publish %d out of order: got %s want %s", key, i, got[i], want[i])
			}
		}
	}
}

func TestProcessBatchMarksFailureAndKeepsDraining(t *testing.T) {
	first := stagedEvent(t, "1")
	second := stagedEvent(t, "2")
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedFor(first)}, &fakeDLQRepo{}, nil)

	if err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected the first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected the second row marked published, got %v", repo.published)
	}
}

func TestProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := stagedEvent(t, "7")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, dlqRepo, nil)

	if err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlqRepo.entries))
	}
	entry := dlqRepo.entries[0]
	if entry.source.ID != event.ID {
		t.Fatalf("dlq entry recorded wrong event id: %s", entry.source.ID)
	}
	if entry.reason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.reason)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected the row marked terminal, got %v", repo.terminal)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal row should not also be marked failed")
	}
}

func TestProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := stagedEvent(t, "9")
	event.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedFor(event)}, dlqRepo, &config.OutboxConfig{
		Enabled:        true,
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlqRepo.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlqRepo.entries))
	}
	if dlqRepo.entries[0].reason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlqRepo.entries[0].reason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected the row marked terminal, got %v", repo.terminal)
	}
}

func TestRunExitsWhenDisabled(t *testing.T) {
	repo := &fakeRepo{}
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, &config.OutboxConfig{
		Enabled:        false,
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if err := service.Run(context.Background()); err != nil {
		t.Fatalf("run should return nil when publishing is disabled: %v", err)
	}
	if repo.fetches != 0 {
		t.Fatalf("disabled publisher should never poll, polled %d times", repo.fetches)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, &config.OutboxConfig{
		Enabled:        true,
		BatchSize:      1,
		PollIntervalMS: 5,
		InitialDelayMS: 1,
		MaxAttempts:    2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := service.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if repo.fetches == 0 {
		t.Fatalf("expected at least one poll cycle before cancel")
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		Enabled:        true,
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{Outbox: outboxCfg}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
		Metrics:          nil,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func stagedEvent(tb testing.TB, aggregateID string) models.OutboxEvent {
	tb.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRentalConfirmed,
		AggregateType: enums.AggregateRental,
		AggregateID:   aggregateID,
		Payload:       mustEnvelopePayload(tb),
		Headers:       models.JSONMap{"source": "carshare-test"},
		CreatedAt:     time.Now(),
	}
}

func resolvedFor(event models.OutboxEvent) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         "cs-rental-events",
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.RentalConfirmedEvent{},
	}
}

func mustEnvelopePayload(tb testing.TB) []byte {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       []byte(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	fetches   int
}

func (f *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	f.fetches++
	events := f.events
	f.events = nil
	return events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

func (f *fakeRepo) CountPending(maxAttempts int) (int64, error) {
	return int64(len(f.events)), nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	return &resolved, f.err
}

type fakeDLQEntry struct {
	source models.OutboxEvent
	reason enums.OutboxDLQErrorReason
}

type fakeDLQRepo struct {
	entries []fakeDLQEntry
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, source *models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	f.entries = append(f.entries, fakeDLQEntry{source: *source, reason: reason})
	return nil
}
