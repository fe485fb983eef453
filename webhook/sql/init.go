package sql

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createTables(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*subscriptionModel)(nil),
		(*deliveryModel)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func createDeliveryIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*deliveryModel)(nil)).
		Index("idx_webhook_deliveries_subscription_created").
		Column("subscription_id", "created_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createTables(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createDeliveryIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// InitDB initializes the webhook_subscriptions and webhook_deliveries
// tables and their indexes inside a single transaction. It is
// idempotent and may be safely called multiple times.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}

// MustInitDB behaves like InitDB but panics on failure.
func MustInitDB(ctx context.Context, db *bun.DB) {
	if err := initDB(ctx, db); err != nil {
		panic(err)
	}
}
