package sql_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/renderqueue/core/webhook"
	wsql "github.com/renderqueue/core/webhook/sql"
)

func TestCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	store := wsql.NewStore(db)
	ctx := context.Background()

	sub := &webhook.Subscription{
		Queue:  "renders",
		Events: []webhook.Event{webhook.EventJobCompleted, webhook.EventJobDeadLetter},
		URL:    "https://example.com/hook",
		Secret: "s3cret",
	}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if sub.Id == uuid.Nil {
		t.Fatal("expected assigned id")
	}

	got, err := store.Get(ctx, sub.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected subscription")
	}
	if got.URL != sub.URL || got.Queue != sub.Queue {
		t.Fatalf("unexpected subscription: %+v", got)
	}
	if !got.Active {
		t.Fatal("expected new subscription to be active")
	}
}

func TestGetMissing(t *testing.T) {
	db := newTestDB(t)
	store := wsql.NewStore(db)
	got, err := store.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected nil for missing subscription")
	}
}

func TestListActiveForMatchesQueueAndEvent(t *testing.T) {
	db := newTestDB(t)
	store := wsql.NewStore(db)
	ctx := context.Background()

	specific := &webhook.Subscription{
		Queue:  "renders",
		Events: []webhook.Event{webhook.EventJobCompleted},
		URL:    "https://example.com/a",
		Secret: "a",
	}
	catchAll := &webhook.Subscription{
		Events: []webhook.Event{webhook.EventJobCompleted},
		URL:    "https://example.com/b",
		Secret: "b",
	}
	other := &webhook.Subscription{
		Queue:  "thumbnails",
		Events: []webhook.Event{webhook.EventJobCompleted},
		URL:    "https://example.com/c",
		Secret: "c",
	}
	for _, s := range []*webhook.Subscription{specific, catchAll, other} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := store.ListActiveFor(ctx, "renders", webhook.EventJobCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}

	noMatches, err := store.ListActiveFor(ctx, "renders", webhook.EventJobCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if len(noMatches) != 0 {
		t.Fatalf("expected 0 matches, got %d", len(noMatches))
	}
}

func TestMarkFailureDisablesAfterThreshold(t *testing.T) {
	db := newTestDB(t)
	store := wsql.NewStore(db)
	ctx := context.Background()

	sub := &webhook.Subscription{
		Queue:  "renders",
		Events: []webhook.Event{webhook.EventJobCompleted},
		URL:    "https://example.com/hook",
		Secret: "s3cret",
	}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}

	var failures uint32
	var err error
	for i := uint32(0); i < webhook.DisableAfterFailures; i++ {
		failures, err = store.MarkFailure(ctx, sub.Id)
		if err != nil {
			t.Fatal(err)
		}
	}
	if failures != webhook.DisableAfterFailures {
		t.Fatalf("expected %d failures, got %d", webhook.DisableAfterFailures, failures)
	}

	got, err := store.Get(ctx, sub.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Fatal("expected subscription to be disabled")
	}
	if got.DisabledAt == nil {
		t.Fatal("expected DisabledAt to be set")
	}

	if err := store.MarkSuccess(ctx, sub.Id); err != nil {
		t.Fatal(err)
	}
	got, err = store.Get(ctx, sub.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.ConsecutiveFailures != 0 {
		t.Fatalf("expected failures reset, got %d", got.ConsecutiveFailures)
	}

	if err := store.Enable(ctx, sub.Id); err != nil {
		t.Fatal(err)
	}
	got, err = store.Get(ctx, sub.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Active {
		t.Fatal("expected subscription to be re-enabled")
	}
}

func TestRecordAndListDeliveries(t *testing.T) {
	db := newTestDB(t)
	store := wsql.NewStore(db)
	ctx := context.Background()

	sub := &webhook.Subscription{
		Queue:  "renders",
		Events: []webhook.Event{webhook.EventJobCompleted},
		URL:    "https://example.com/hook",
		Secret: "s3cret",
	}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}

	delivery := &webhook.Delivery{
		Id:             uuid.New(),
		SubscriptionId: sub.Id,
		Event:          webhook.EventJobCompleted,
		JobId:          uuid.New(),
		Payload:        []byte(`{"ok":true}`),
		Attempt:        1,
		Status:         webhook.DeliveryPending,
	}
	if err := store.RecordDelivery(ctx, delivery); err != nil {
		t.Fatal(err)
	}

	delivery.Status = webhook.DeliveryDelivered
	delivery.ResponseCode = 200
	delivery.Attempt = 2
	if err := store.RecordDelivery(ctx, delivery); err != nil {
		t.Fatal(err)
	}

	deliveries, err := store.ListDeliveries(ctx, sub.Id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery after upsert, got %d", len(deliveries))
	}
	if deliveries[0].Status != webhook.DeliveryDelivered || deliveries[0].Attempt != 2 {
		t.Fatalf("expected updated delivery, got %+v", deliveries[0])
	}
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	store := wsql.NewStore(db)
	ctx := context.Background()

	sub := &webhook.Subscription{
		Queue:  "renders",
		Events: []webhook.Event{webhook.EventJobCompleted},
		URL:    "https://example.com/hook",
		Secret: "s3cret",
	}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, sub.Id); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, sub.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected subscription to be deleted")
	}
}
