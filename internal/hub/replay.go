package hub

import (
	"context"

	"github.com/vaultdrop/vaultdrop/internal/protocol"
	"github.com/vaultdrop/vaultdrop/internal/schema"
	"github.com/vaultdrop/vaultdrop/internal/session"
)

// replayPage sends one page of existing content to a single client:
// each item's metadata, then its chunks, then pagination info. A client that
// disconnects mid-replay just stops receiving; the sends become no-ops.
func (h *Hub) replayPage(ctx context.Context, sender session.Sender, sessionID string, offset, limit int, excludeIDs []string, withPagination bool) {
	recs, err := h.contents.ListReplayable(ctx, sessionID, offset, limit, excludeIDs)
	if err != nil {
		h.logger.WithError(err).WithField("session", sessionID).
			Error("replay listing failed")
		return
	}

	for _, rec := range recs {
		h.replayContent(ctx, sender, rec)
	}

	if !withPagination {
		return
	}
	total, err := h.contents.CountReplayable(ctx, sessionID, excludeIDs)
	if err != nil {
		h.logger.WithError(err).WithField("session", sessionID).
			Error("replay count failed")
		return
	}
	h.send(sender, &protocol.PaginationInfo{
		SessionID:  sessionID,
		TotalCount: int(total),
		PageSize:   limit,
		HasMore:    offset+limit < int(total),
	})
}

// replayPending sends the metadata of announced-but-incomplete contents so a
// client that joins mid-upload sees metadata before the live chunk
// broadcasts it is about to receive.
func (h *Hub) replayPending(sender session.Sender, sessionID string, excludeIDs []string) {
	skip := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = struct{}{}
	}

	h.mu.Lock()
	infos := make([]protocol.ContentInfo, 0, len(h.pending))
	for key, info := range h.pending {
		if key.sessionID != sessionID {
			continue
		}
		if _, ok := skip[key.contentID]; ok {
			continue
		}
		infos = append(infos, info)
	}
	h.mu.Unlock()

	for _, info := range infos {
		h.send(sender, &protocol.Content{SessionID: sessionID, Info: info})
	}
}

// replayContent emits one item's metadata followed by its chunks, in index
// order. The metadata-before-chunks ordering is the protocol's only
// cross-event guarantee.
func (h *Hub) replayContent(ctx context.Context, sender session.Sender, rec schema.Content) {
	h.send(sender, &protocol.Content{
		SessionID: rec.SessionID,
		Info:      infoFromRecord(rec),
	})

	chunkRows, err := h.chunks.ListByContent(ctx, rec.ID)
	if err != nil {
		h.logger.WithError(err).WithField("content", rec.ID).
			Error("replay chunk listing failed")
		return
	}
	ivByIndex := make(map[int][]byte, len(chunkRows))
	for _, row := range chunkRows {
		ivByIndex[row.ChunkIndex] = row.EncryptionIV
	}

	err = h.disk.StreamContent(rec.SessionID, rec.ID, rec.TotalChunks, func(index int, data []byte) error {
		h.send(sender, &protocol.Chunk{
			SessionID:   rec.SessionID,
			ContentID:   rec.ID,
			ChunkIndex:  index,
			TotalChunks: rec.TotalChunks,
			Data:        data,
			IV:          ivByIndex[index],
		})
		return nil
	})
	if err != nil {
		h.logger.WithError(err).WithField("content", rec.ID).
			Error("replay chunk stream failed")
	}
}
