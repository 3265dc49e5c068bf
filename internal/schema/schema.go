// Package schema holds the persisted metadata rows. Payload bytes live on
// disk (internal/disk); these rows are the single source of truth for what
// exists.
package schema

// Content is one shared item. EncryptionIV and AdditionalMetadata are opaque
// client data, stored and forwarded but never interpreted.
type Content struct {
	ID                 string `gorm:"primaryKey"`
	SessionID          string `gorm:"index;not null"`
	ContentType        string
	MimeType           string
	TotalChunks        int
	TotalSize          int64
	CreatedAt          int64 `gorm:"index"`
	SenderID           string
	SenderName         string
	EncryptionIV       []byte
	AdditionalMetadata string
	IsComplete         bool
	IsPinned           bool
	IsLargeFile        bool
}

// Chunk exists once its bytes are durably on disk. A chunk's IV is per-chunk
// client data, opaque to the server.
type Chunk struct {
	ContentID    string `gorm:"primaryKey;not null"`
	ChunkIndex   int    `gorm:"primaryKey"`
	Size         int64
	EncryptionIV []byte
}
