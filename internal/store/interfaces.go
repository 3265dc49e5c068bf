package store

import (
	"context"

	"github.com/vaultdrop/vaultdrop/internal/schema"
)

// ContentRepository defines content metadata operations.
type ContentRepository interface {
	Upsert(ctx context.Context, rec *schema.Content) error
	Get(ctx context.Context, id string) (schema.Content, error)
	List(ctx context.Context, sessionID string, offset, limit int) ([]schema.Content, error)
	Count(ctx context.Context, sessionID string) (int64, error)
	ListReplayable(ctx context.Context, sessionID string, offset, limit int, excludeIDs []string) ([]schema.Content, error)
	CountReplayable(ctx context.Context, sessionID string, excludeIDs []string) (int64, error)
	CountPinned(ctx context.Context, sessionID string) (int64, error)
	ListEvictable(ctx context.Context, sessionID string) ([]schema.Content, error)
	SetComplete(ctx context.Context, id string) error
	SetPinned(ctx context.Context, id string, pinned bool) error
	UpdateMetadata(ctx context.Context, id, metadata string) error
	Delete(ctx context.Context, id string, removeFiles func() error) error
	DeleteBySession(ctx context.Context, sessionID string, removeFiles func() error) error
	SessionIDs(ctx context.Context) ([]string, error)
}

// ChunkRepository defines chunk metadata operations.
type ChunkRepository interface {
	Upsert(ctx context.Context, rec *schema.Chunk) error
	CountByContent(ctx context.Context, contentID string) (int64, error)
	ListByContent(ctx context.Context, contentID string) ([]schema.Chunk, error)
}

var (
	_ ContentRepository = (*ContentStore)(nil)
	_ ChunkRepository   = (*ChunkStore)(nil)
)
