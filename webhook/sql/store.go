package sql

import (
	gosql "database/sql"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/renderqueue/core/webhook"
	"github.com/uptrace/bun"
)

// Store implements webhook.Store using a SQL backend.
type Store struct {
	db *bun.DB
}

// NewStore creates a new SQL-backed Store.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Create durably records sub, assigning it an id.
func (s *Store) Create(ctx context.Context, sub *webhook.Subscription) error {
	model := fromSubscription(sub)
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return err
	}
	sub.Id = model.Id
	sub.Active = true
	sub.CreatedAt = model.CreatedAt
	sub.UpdatedAt = model.UpdatedAt
	return nil
}

// Get returns the subscription identified by id, or (nil, nil).
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*webhook.Subscription, error) {
	var model subscriptionModel
	err := s.db.NewSelect().Model(&model).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, gosql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return model.toSubscription(), nil
}

// List returns every subscription.
func (s *Store) List(ctx context.Context) ([]*webhook.Subscription, error) {
	var models []*subscriptionModel
	if err := s.db.NewSelect().Model(&models).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	ret := make([]*webhook.Subscription, len(models))
	for i, m := range models {
		ret[i] = m.toSubscription()
	}
	return ret, nil
}

// ListActiveFor returns active subscriptions listening for event in
// queue (or catch-all subscriptions with an empty Queue).
func (s *Store) ListActiveFor(ctx context.Context, queue string, event webhook.Event) ([]*webhook.Subscription, error) {
	var models []*subscriptionModel
	err := s.db.NewSelect().
		Model(&models).
		Where("active = ?", true).
		Where("(queue = '' OR queue = ?)", queue).
		Where("EXISTS (SELECT 1 FROM json_each(events) WHERE json_each.value = ?)", string(event)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]*webhook.Subscription, len(models))
	for i, m := range models {
		ret[i] = m.toSubscription()
	}
	return ret, nil
}

// Delete removes a subscription by id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewDelete().Model((*subscriptionModel)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// RecordDelivery durably persists d, inserting it if new or updating
// it in place if d.Id was already recorded.
func (s *Store) RecordDelivery(ctx context.Context, d *webhook.Delivery) error {
	model := fromDelivery(d)
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("attempt = EXCLUDED.attempt").
		Set("status = EXCLUDED.status").
		Set("response_code = EXCLUDED.response_code").
		Set("error = EXCLUDED.error").
		Set("delivered_at = EXCLUDED.delivered_at").
		Exec(ctx)
	return err
}

// ListDeliveries returns delivery history for subscriptionID,
// newest-first, up to limit (defaulting to 100).
func (s *Store) ListDeliveries(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*webhook.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []*deliveryModel
	err := s.db.NewSelect().
		Model(&models).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]*webhook.Delivery, len(models))
	for i, m := range models {
		ret[i] = m.toDelivery()
	}
	return ret, nil
}

// MarkFailure increments id's consecutive-failure count, disabling the
// subscription in the same update once it reaches
// webhook.DisableAfterFailures.
func (s *Store) MarkFailure(ctx context.Context, id uuid.UUID) (uint32, error) {
	var model subscriptionModel
	now := time.Now()
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&model).Where("id = ?", id).For("UPDATE").Scan(ctx); err != nil {
			return err
		}
		model.ConsecutiveFailures++
		query := tx.NewUpdate().
			Model(&model).
			Set("consecutive_failures = ?", model.ConsecutiveFailures).
			Set("updated_at = ?", now).
			Where("id = ?", id)
		if model.ConsecutiveFailures >= webhook.DisableAfterFailures {
			query = query.Set("active = ?", false).Set("disabled_at = ?", now)
		}
		_, err := query.Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return model.ConsecutiveFailures, nil
}

// MarkSuccess resets id's consecutive-failure count to zero.
func (s *Store) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*subscriptionModel)(nil)).
		Set("consecutive_failures = 0").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// Enable reactivates a disabled subscription and resets its
// consecutive-failure count.
func (s *Store) Enable(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*subscriptionModel)(nil)).
		Set("active = ?", true).
		Set("consecutive_failures = 0").
		Set("disabled_at = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
