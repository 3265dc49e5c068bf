package hub

import (
	"context"
	"errors"

	"github.com/vaultdrop/vaultdrop/internal/protocol"
	"github.com/vaultdrop/vaultdrop/internal/schema"
	"github.com/vaultdrop/vaultdrop/internal/session"
	"github.com/vaultdrop/vaultdrop/internal/store"
)

func (h *Hub) authorized(sender session.Sender, sessionID, token string) bool {
	return h.registry.ValidateToken(sender.ID(), token, sessionID)
}

// send pushes a message to one client; a dead connection is logged at debug
// and otherwise ignored.
func (h *Hub) send(sender session.Sender, msg protocol.Message) {
	if err := sender.Send(msg); err != nil {
		h.logger.WithError(err).WithField("client", sender.ID()).
			Debug("send failed")
	}
}

// broadcast fans a message out to every client in the session except the
// originator. Pass an empty exceptID to reach everyone.
func (h *Hub) broadcast(sessionID, exceptID string, msg protocol.Message) {
	for _, peer := range h.registry.Peers(sessionID, exceptID) {
		if err := peer.Send(msg); err != nil {
			h.logger.WithError(err).WithField("client", peer.ID).
				Debug("broadcast send failed")
		}
	}
}

func (h *Hub) ack(sender session.Sender, requestID uint64) {
	h.send(sender, &protocol.Ack{RequestID: requestID, Success: true})
}

func (h *Hub) nack(sender session.Sender, requestID uint64, code protocol.ErrorCode, message string) {
	h.send(sender, &protocol.Ack{
		RequestID: requestID,
		Success:   false,
		Code:      code,
		Error:     message,
	})
}

// internalError logs the real failure and acks a generic message; internal
// paths never cross the wire.
func (h *Hub) internalError(sender session.Sender, requestID uint64, op string, err error) {
	h.logger.WithError(err).WithField("op", op).Error("request failed")
	h.nack(sender, requestID, protocol.ErrCodeInternal, "internal storage error")
}

// materialize writes the content row for a multi-chunk upload once its last
// declared chunk has landed, using the announced metadata when the sender
// provided one.
func (h *Hub) materialize(ctx context.Context, sender session.Sender, msg *protocol.Chunk) error {
	h.mu.Lock()
	info, ok := h.pending[pendingKey{msg.SessionID, msg.ContentID}]
	h.mu.Unlock()

	if !ok {
		// No announcement seen (e.g. reconnect mid-upload); synthesize the
		// row from what the chunk itself declares.
		if _, err := h.contents.Get(ctx, msg.ContentID); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		info = protocol.ContentInfo{
			ContentID:   msg.ContentID,
			SessionID:   msg.SessionID,
			TotalChunks: msg.TotalChunks,
			SenderID:    sender.ID(),
		}
	}
	return h.contents.Upsert(ctx, recordFromInfo(info))
}

// checkCompletion recomputes the persisted chunk count and flips the
// complete flag the moment it matches the declared total. Idempotent and
// order-independent.
func (h *Hub) checkCompletion(ctx context.Context, contentID string, totalChunks int) (bool, error) {
	count, err := h.chunks.CountByContent(ctx, contentID)
	if err != nil {
		return false, err
	}
	if count != int64(totalChunks) {
		return false, nil
	}
	if err := h.contents.SetComplete(ctx, contentID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	return true, nil
}

func (h *Hub) isLargeFile(ctx context.Context, sessionID, contentID string) bool {
	h.mu.Lock()
	info, pendingOK := h.pending[pendingKey{sessionID, contentID}]
	h.mu.Unlock()
	if pendingOK {
		return info.IsLargeFile
	}
	rec, err := h.contents.Get(ctx, contentID)
	if err != nil {
		return false
	}
	return rec.IsLargeFile
}

// evictAndNotify runs the on-demand eviction pass after an upload completes
// and tells the whole session about anything that fell off the end.
func (h *Hub) evictAndNotify(ctx context.Context, sessionID string) {
	removed, err := h.evictor.CleanupOldContent(ctx, sessionID)
	if err != nil {
		h.logger.WithError(err).WithField("session", sessionID).
			Warn("on-demand eviction failed")
		return
	}
	for _, contentID := range removed {
		h.broadcast(sessionID, "", &protocol.ContentRemoved{
			SessionID: sessionID,
			ContentID: contentID,
		})
	}
}

func recordFromInfo(info protocol.ContentInfo) *schema.Content {
	return &schema.Content{
		ID:                 info.ContentID,
		SessionID:          info.SessionID,
		ContentType:        info.ContentType,
		MimeType:           info.MimeType,
		TotalChunks:        info.TotalChunks,
		TotalSize:          info.TotalSize,
		CreatedAt:          info.CreatedAt,
		SenderID:           info.SenderID,
		SenderName:         info.SenderName,
		EncryptionIV:       info.EncryptionIV,
		AdditionalMetadata: info.Metadata,
		IsComplete:         info.IsComplete,
		IsPinned:           info.IsPinned,
		IsLargeFile:        info.IsLargeFile,
	}
}

func infoFromRecord(rec schema.Content) protocol.ContentInfo {
	return protocol.ContentInfo{
		ContentID:    rec.ID,
		SessionID:    rec.SessionID,
		ContentType:  rec.ContentType,
		MimeType:     rec.MimeType,
		TotalChunks:  rec.TotalChunks,
		TotalSize:    rec.TotalSize,
		CreatedAt:    rec.CreatedAt,
		SenderID:     rec.SenderID,
		SenderName:   rec.SenderName,
		Timestamp:    rec.CreatedAt * 1000,
		EncryptionIV: rec.EncryptionIV,
		Metadata:     rec.AdditionalMetadata,
		IsComplete:   rec.IsComplete,
		IsPinned:     rec.IsPinned,
		IsLargeFile:  rec.IsLargeFile,
	}
}
