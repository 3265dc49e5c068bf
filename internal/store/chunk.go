package store

import (
	"context"

	"github.com/vaultdrop/vaultdrop/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChunkStore struct {
	db *gorm.DB
}

func NewChunkStore(db *gorm.DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// Upsert records a chunk as persisted. Re-saving the same (contentID, index)
// overwrites, matching the idempotent disk write.
func (cs *ChunkStore) Upsert(ctx context.Context, rec *schema.Chunk) error {
	return cs.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}, {Name: "chunk_index"}},
		UpdateAll: true,
	}).Create(rec).Error
}

// CountByContent recomputes the persisted-chunk count fresh from rows.
// Completion detection relies on this instead of a cached counter, which is
// what makes out-of-order and re-sent chunks safe.
func (cs *ChunkStore) CountByContent(ctx context.Context, contentID string) (int64, error) {
	var count int64
	err := cs.db.WithContext(ctx).Model(&schema.Chunk{}).
		Where("content_id = ?", contentID).
		Count(&count).Error
	return count, err
}

func (cs *ChunkStore) ListByContent(ctx context.Context, contentID string) ([]schema.Chunk, error) {
	var recs []schema.Chunk
	err := cs.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("chunk_index ASC").
		Find(&recs).Error
	return recs, err
}
