package sql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/renderqueue/core/job"
	"github.com/renderqueue/core/queue"
	"github.com/uptrace/bun"
)

// Archive implements queue.Archive using a SQL backend.
type Archive struct {
	db       *bun.DB
	ingestor *Ingestor
}

// NewArchive creates a new SQL-backed Archive. Replay reuses ingestor
// to create the new job so dead-letter replays go through the same
// idempotency handling as any other ingest.
func NewArchive(db *bun.DB, ingestor *Ingestor) *Archive {
	return &Archive{db: db, ingestor: ingestor}
}

// Get returns the archive entry identified by id, or (nil, nil) if
// none exists.
func (a *Archive) Get(ctx context.Context, id uuid.UUID) (*job.ArchiveEntry, error) {
	var model archiveModel
	err := a.db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return model.toEntry()
}

// List returns archive entries newest-first, optionally restricted to
// queue, up to limit (a non-positive limit defaults to 100).
func (a *Archive) List(ctx context.Context, queueName string, limit int) ([]*job.ArchiveEntry, error) {
	query := a.db.NewSelect().Model((*archiveModel)(nil)).Order("archived_at DESC")
	if queueName != "" {
		query = query.Where("queue = ?", queueName)
	}
	if limit <= 0 {
		limit = 100
	}
	query = query.Limit(limit)
	var models []*archiveModel
	if err := query.Scan(ctx, &models); err != nil {
		return nil, err
	}
	entries := make([]*job.ArchiveEntry, len(models))
	for i, m := range models {
		entry, err := m.toEntry()
		if err != nil {
			return nil, err
		}
		entries[i] = entry
	}
	return entries, nil
}

// Replay ingests a fresh job from the archive entry's original spec.
// The entry and the original dead-letter job row are left untouched.
func (a *Archive) Replay(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	entry, err := a.Get(ctx, id)
	if err != nil {
		return uuid.UUID{}, err
	}
	if entry == nil {
		return uuid.UUID{}, queue.ErrNoSuchEntry
	}
	newID, _, err := a.ingestor.Ingest(ctx, entry.OriginalSpec, 0)
	return newID, err
}

// ReplayMatching replays every archive entry whose original spec
// carries tag, in archive order. Entries that fail to replay are
// skipped rather than aborting the batch.
func (a *Archive) ReplayMatching(ctx context.Context, tag string) ([]uuid.UUID, error) {
	var models []*archiveModel
	err := a.db.NewSelect().
		Model(&models).
		Where("EXISTS (SELECT 1 FROM json_each(tags) WHERE json_each.value = ?)", tag).
		Order("archived_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, m := range models {
		entry, err := m.toEntry()
		if err != nil {
			continue
		}
		newID, _, err := a.ingestor.Ingest(ctx, entry.OriginalSpec, 0)
		if err != nil {
			continue
		}
		ids = append(ids, newID)
	}
	return ids, nil
}
