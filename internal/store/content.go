// Package store provides database access for content and chunk metadata.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaultdrop/vaultdrop/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("content not found")

type ContentStore struct {
	db *gorm.DB
}

func NewContentStore(db *gorm.DB) *ContentStore {
	return &ContentStore{db: db}
}

// Upsert creates the content row or overwrites an existing one with the same
// id. Re-announcing a content is idempotent.
func (cs *ContentStore) Upsert(ctx context.Context, rec *schema.Content) error {
	return cs.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

func (cs *ContentStore) Get(ctx context.Context, id string) (schema.Content, error) {
	var rec schema.Content
	err := cs.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return schema.Content{}, ErrNotFound
	}
	return rec, err
}

// List returns a page of a session's content, pinned items first, then most
// recent first.
func (cs *ContentStore) List(ctx context.Context, sessionID string, offset, limit int) ([]schema.Content, error) {
	var recs []schema.Content
	err := cs.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("is_pinned DESC, created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (cs *ContentStore) Count(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := cs.db.WithContext(ctx).Model(&schema.Content{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// ListReplayable pages over the items whose chunks may be replayed to a
// joining client: complete and not large, minus any ids the client already
// holds.
func (cs *ContentStore) ListReplayable(ctx context.Context, sessionID string, offset, limit int, excludeIDs []string) ([]schema.Content, error) {
	q := cs.replayableQuery(ctx, sessionID, excludeIDs)
	var recs []schema.Content
	err := q.Order("is_pinned DESC, created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (cs *ContentStore) CountReplayable(ctx context.Context, sessionID string, excludeIDs []string) (int64, error) {
	var count int64
	err := cs.replayableQuery(ctx, sessionID, excludeIDs).Count(&count).Error
	return count, err
}

func (cs *ContentStore) replayableQuery(ctx context.Context, sessionID string, excludeIDs []string) *gorm.DB {
	q := cs.db.WithContext(ctx).Model(&schema.Content{}).
		Where("session_id = ? AND is_complete = ? AND is_large_file = ?", sessionID, true, false)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	return q
}

func (cs *ContentStore) CountPinned(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := cs.db.WithContext(ctx).Model(&schema.Content{}).
		Where("session_id = ? AND is_pinned = ?", sessionID, true).
		Count(&count).Error
	return count, err
}

// ListEvictable returns a session's non-pinned content, most recent first,
// so callers can keep a head slice and drop the rest.
func (cs *ContentStore) ListEvictable(ctx context.Context, sessionID string) ([]schema.Content, error) {
	var recs []schema.Content
	err := cs.db.WithContext(ctx).
		Where("session_id = ? AND is_pinned = ?", sessionID, false).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}

func (cs *ContentStore) SetComplete(ctx context.Context, id string) error {
	return cs.update(ctx, id, map[string]any{"is_complete": true})
}

func (cs *ContentStore) SetPinned(ctx context.Context, id string, pinned bool) error {
	return cs.update(ctx, id, map[string]any{"is_pinned": pinned})
}

func (cs *ContentStore) UpdateMetadata(ctx context.Context, id, metadata string) error {
	return cs.update(ctx, id, map[string]any{"additional_metadata": metadata})
}

func (cs *ContentStore) update(ctx context.Context, id string, values map[string]any) error {
	res := cs.db.WithContext(ctx).Model(&schema.Content{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the content row and its chunk rows in one transaction.
// removeFiles runs inside the transaction; if it fails the row deletes are
// rolled back, so a chunk file never outlives a failed delete without its
// metadata.
func (cs *ContentStore) Delete(ctx context.Context, id string, removeFiles func() error) error {
	return cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("content_id = ?", id).Delete(&schema.Chunk{}).Error; err != nil {
			return fmt.Errorf("deleting chunk rows for %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&schema.Content{}).Error; err != nil {
			return fmt.Errorf("deleting content row %s: %w", id, err)
		}
		if removeFiles != nil {
			return removeFiles()
		}
		return nil
	})
}

// DeleteBySession wipes every content row for a session, with the same
// transactional file-removal contract as Delete.
func (cs *ContentStore) DeleteBySession(ctx context.Context, sessionID string, removeFiles func() error) error {
	return cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&schema.Content{}).Select("id").Where("session_id = ?", sessionID)
		if err := tx.Where("content_id IN (?)", sub).Delete(&schema.Chunk{}).Error; err != nil {
			return fmt.Errorf("deleting chunk rows for session %s: %w", sessionID, err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&schema.Content{}).Error; err != nil {
			return fmt.Errorf("deleting content rows for session %s: %w", sessionID, err)
		}
		if removeFiles != nil {
			return removeFiles()
		}
		return nil
	})
}

// SessionIDs lists the distinct sessions that still own content rows; the
// eviction sweep iterates over these.
func (cs *ContentStore) SessionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := cs.db.WithContext(ctx).Model(&schema.Content{}).
		Distinct("session_id").
		Pluck("session_id", &ids).Error
	return ids, err
}
