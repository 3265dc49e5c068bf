// Package hub orchestrates the session sync protocol: ingestion of content
// and chunks, fan-out to connected peers, replay for late joiners, and
// removal propagation. The transport hands every decoded message to
// Hub.Handle and stays out of the business logic.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vaultdrop/vaultdrop/internal/disk"
	"github.com/vaultdrop/vaultdrop/internal/eviction"
	"github.com/vaultdrop/vaultdrop/internal/protocol"
	"github.com/vaultdrop/vaultdrop/internal/schema"
	"github.com/vaultdrop/vaultdrop/internal/session"
	"github.com/vaultdrop/vaultdrop/internal/store"
)

type Options struct {
	JoinPageSize       int
	LargeFileThreshold int64
}

type Hub struct {
	registry *session.Registry
	contents *store.ContentStore
	chunks   *store.ChunkStore
	disk     *disk.Store
	evictor  *eviction.Manager
	logger   *logrus.Logger
	opts     Options

	// pending holds metadata for announced multi-chunk contents whose row
	// has not materialized yet; the row is written once the last declared
	// chunk lands. Keyed per session so one session's announcement can
	// never clobber another's.
	mu      sync.Mutex
	pending map[pendingKey]protocol.ContentInfo
}

type pendingKey struct {
	sessionID string
	contentID string
}

func New(registry *session.Registry, contents *store.ContentStore, chunks *store.ChunkStore, diskStore *disk.Store, evictor *eviction.Manager, opts Options, logger *logrus.Logger) *Hub {
	return &Hub{
		registry: registry,
		contents: contents,
		chunks:   chunks,
		disk:     diskStore,
		evictor:  evictor,
		logger:   logger,
		opts:     opts,
		pending:  make(map[pendingKey]protocol.ContentInfo),
	}
}

// Handle dispatches one inbound message. Every failure local to the request
// is converted into a structured ack; nothing a single client sends can
// take down the connection or the session.
func (h *Hub) Handle(ctx context.Context, sender session.Sender, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Join:
		h.handleJoin(ctx, sender, m)
	case *protocol.Content:
		h.handleContent(ctx, sender, m)
	case *protocol.Chunk:
		h.handleChunk(ctx, sender, m)
	case *protocol.ListContent:
		h.handleListContent(ctx, sender, m)
	case *protocol.RemoveContent:
		h.handleRemoveContent(ctx, sender, m)
	case *protocol.PinContent:
		h.handlePinContent(ctx, sender, m)
	case *protocol.UnpinContent:
		h.handleUnpinContent(ctx, sender, m)
	case *protocol.UpdateMetadata:
		h.handleUpdateMetadata(ctx, sender, m)
	case *protocol.Ping:
		h.handlePing(sender, m)
	case *protocol.Leave:
		h.handleLeave(ctx, sender, m)
	default:
		h.logger.WithField("type", msg.Type().String()).
			Warn("unhandled message type")
	}
}

// HandleDisconnect detaches a client whose connection dropped without a
// leave message and notifies the remaining peers.
func (h *Hub) HandleDisconnect(sender session.Sender) {
	clientID := sender.ID()
	sessionID, removed := h.registry.RemoveClient(clientID)
	if !removed {
		return
	}
	h.broadcast(sessionID, "", &protocol.ClientLeft{
		SessionID: sessionID,
		ClientID:  clientID,
	})
}

func (h *Hub) handleJoin(ctx context.Context, sender session.Sender, msg *protocol.Join) {
	token, peers, err := h.registry.Join(msg.SessionID, msg.Fingerprint, msg.ClientName, sender)
	if errors.Is(err, session.ErrAuthenticationFailed) {
		h.send(sender, &protocol.JoinAck{
			RequestID: msg.RequestID,
			Success:   false,
			Code:      protocol.ErrCodeAuthFailed,
			Error:     "fingerprint does not match session",
		})
		return
	}

	// Acknowledge before replay so the join request cannot time out behind
	// a slow catch-up.
	h.send(sender, &protocol.JoinAck{
		RequestID: msg.RequestID,
		Success:   true,
		Token:     token,
		Clients:   peers,
	})

	h.replayPage(ctx, sender, msg.SessionID, 0, h.opts.JoinPageSize, msg.CachedContentIDs, true)
	h.replayPending(sender, msg.SessionID, msg.CachedContentIDs)

	h.broadcast(msg.SessionID, sender.ID(), &protocol.ClientJoined{
		SessionID: msg.SessionID,
		Client: protocol.ClientInfo{
			ClientID:    sender.ID(),
			ClientName:  msg.ClientName,
			ConnectedAt: time.Now().Unix(),
		},
	})
}

func (h *Hub) handleContent(ctx context.Context, sender session.Sender, msg *protocol.Content) {
	if !h.authorized(sender, msg.SessionID, msg.Token) {
		h.nack(sender, msg.RequestID, protocol.ErrCodeNotAuthenticated, "not authenticated")
		return
	}
	h.registry.Touch(msg.SessionID)

	info := msg.Info
	info.SessionID = msg.SessionID
	info.SenderID = sender.ID()
	if c, ok := h.registry.GetClient(sender.ID()); ok {
		info.SenderName = c.Name
	}
	now := time.Now()
	info.Timestamp = now.UnixMilli()
	info.CreatedAt = now.Unix()
	if info.TotalChunks <= 0 {
		info.TotalChunks = 1
	}
	info.IsLargeFile = info.TotalSize > h.opts.LargeFileThreshold

	if len(msg.Data) > 0 {
		// Full small item in one step: the inline payload is chunk 0.
		if err := h.disk.SaveChunk(msg.Data, msg.SessionID, info.ContentID, 0); err != nil {
			h.internalError(sender, msg.RequestID, "save inline content", err)
			return
		}
		if err := h.chunks.Upsert(ctx, &schema.Chunk{
			ContentID:    info.ContentID,
			ChunkIndex:   0,
			Size:         int64(len(msg.Data)),
			EncryptionIV: info.EncryptionIV,
		}); err != nil {
			h.internalError(sender, msg.RequestID, "record inline chunk", err)
			return
		}
		if err := h.contents.Upsert(ctx, recordFromInfo(info)); err != nil {
			h.internalError(sender, msg.RequestID, "record content", err)
			return
		}
		completed, err := h.checkCompletion(ctx, info.ContentID, info.TotalChunks)
		if err != nil {
			h.internalError(sender, msg.RequestID, "check completion", err)
			return
		}
		info.IsComplete = completed
	} else {
		// Multi-chunk announcement; the row materializes when the last
		// declared chunk lands.
		h.mu.Lock()
		h.pending[pendingKey{msg.SessionID, info.ContentID}] = info
		h.mu.Unlock()
	}

	h.ack(sender, msg.RequestID)

	out := &protocol.Content{SessionID: msg.SessionID, Info: info}
	if !info.IsLargeFile {
		out.Data = msg.Data
	}
	h.broadcast(msg.SessionID, sender.ID(), out)

	if info.IsComplete {
		h.evictAndNotify(ctx, msg.SessionID)
	}
}

func (h *Hub) handleChunk(ctx context.Context, sender session.Sender, msg *protocol.Chunk) {
	if !h.authorized(sender, msg.SessionID, msg.Token) {
		h.nack(sender, msg.RequestID, protocol.ErrCodeNotAuthenticated, "not authenticated")
		return
	}
	h.registry.Touch(msg.SessionID)

	if err := h.disk.SaveChunk(msg.Data, msg.SessionID, msg.ContentID, msg.ChunkIndex); err != nil {
		h.internalError(sender, msg.RequestID, "save chunk", err)
		return
	}
	if err := h.chunks.Upsert(ctx, &schema.Chunk{
		ContentID:    msg.ContentID,
		ChunkIndex:   msg.ChunkIndex,
		Size:         int64(len(msg.Data)),
		EncryptionIV: msg.IV,
	}); err != nil {
		h.internalError(sender, msg.RequestID, "record chunk", err)
		return
	}

	if msg.ChunkIndex == msg.TotalChunks-1 {
		if err := h.materialize(ctx, sender, msg); err != nil {
			h.internalError(sender, msg.RequestID, "record content", err)
			return
		}
	}

	completed, err := h.checkCompletion(ctx, msg.ContentID, msg.TotalChunks)
	if err != nil {
		h.internalError(sender, msg.RequestID, "check completion", err)
		return
	}

	h.ack(sender, msg.RequestID)

	if !h.isLargeFile(ctx, msg.SessionID, msg.ContentID) {
		h.broadcast(msg.SessionID, sender.ID(), &protocol.Chunk{
			SessionID:   msg.SessionID,
			ContentID:   msg.ContentID,
			ChunkIndex:  msg.ChunkIndex,
			TotalChunks: msg.TotalChunks,
			Data:        msg.Data,
			IV:          msg.IV,
		})
	}

	if completed {
		h.mu.Lock()
		delete(h.pending, pendingKey{msg.SessionID, msg.ContentID})
		h.mu.Unlock()
		h.evictAndNotify(ctx, msg.SessionID)
	}
}

func (h *Hub) handleListContent(ctx context.Context, sender session.Sender, msg *protocol.ListContent) {
	if !h.authorized(sender, msg.SessionID, msg.Token) {
		h.send(sender, &protocol.ListContentAck{
			RequestID: msg.RequestID,
			Success:   false,
			Code:      protocol.ErrCodeNotAuthenticated,
			Error:     "not authenticated",
		})
		return
	}
	h.registry.Touch(msg.SessionID)

	recs, err := h.contents.List(ctx, msg.SessionID, msg.Offset, msg.Limit)
	if err != nil {
		h.logger.WithError(err).Error("list content failed")
		h.send(sender, &protocol.ListContentAck{
			RequestID: msg.RequestID,
			Success:   false,
			Code:      protocol.ErrCodeInternal,
			Error:     "internal storage error",
		})
		return
	}
	total, err := h.contents.Count(ctx, msg.SessionID)
	if err != nil {
		h.logger.WithError(err).Error("count content failed")
		h.send(sender, &protocol.ListContentAck{
			RequestID: msg.RequestID,
			Success:   false,
			Code:      protocol.ErrCodeInternal,
			Error:     "internal storage error",
		})
		return
	}

	items := make([]protocol.ContentInfo, 0, len(recs))
	for _, rec := range recs {
		items = append(items, infoFromRecord(rec))
	}

	h.send(sender, &protocol.ListContentAck{
		RequestID:  msg.RequestID,
		Success:    true,
		Items:      items,
		TotalCount: int(total),
		HasMore:    msg.Offset+msg.Limit < int(total),
	})

	// Replay the page's payloads after the ack, mirroring the join flow.
	for _, rec := range recs {
		if rec.IsComplete && !rec.IsLargeFile {
			h.replayContent(ctx, sender, rec)
		}
	}
}

func (h *Hub) handleRemoveContent(ctx context.Context, sender session.Sender, msg *protocol.RemoveContent) {
	if !h.authorized(sender, msg.SessionID, msg.Token) {
		h.nack(sender, msg.RequestID, protocol.ErrCodeNotAuthenticated, "not authenticated")
		return
	}
	h.registry.Touch(msg.SessionID)

	rec, err := h.contents.Get(ctx, msg.ContentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && rec.SessionID != msg.SessionID) {
		h.nack(sender, msg.RequestID, protocol.ErrCodeContentNotFound, "content not found")
		return
	}
	if err != nil {
		h.internalError(sender, msg.RequestID, "load content", err)
		return
	}

	err = h.contents.Delete(ctx, msg.ContentID, func() error {
		return h.disk.RemoveContent(rec.SessionID, msg.ContentID)
	})
	if err != nil {
		h.internalError(sender, msg.RequestID, "remove content", err)
		return
	}

	h.ack(sender, msg.RequestID)
	h.broadcast(msg.SessionID, sender.ID(), &protocol.ContentRemoved{
		SessionID: msg.SessionID,
		ContentID: msg.ContentID,
	})
}

func (h *Hub) handlePinContent(ctx context.Context, sender session.Sender, msg *protocol.PinContent) {
	if !h.authorized(sender, msg.SessionID, msg.Token) {
		h.nack(sender, msg.RequestID, protocol.ErrCodeNotAuthenticated, "not authenticated")
		return
	}
	h.registry.Touch(msg.SessionID)

	switch err := h.evictor.PinContent(ctx, msg.ContentID); {
	case errors.Is(err, eviction.ErrPinLimitReached):
		h.nack(sender, msg.RequestID, protocol.ErrCodeQuotaExceeded, "pinned item limit reached")
		return
	case errors.Is(err, store.ErrNotFound):
		h.nack(sender, msg.RequestID, protocol.ErrCodeContentNotFound, "content not found")
		return
	case err != nil:
		h.internalError(sender, msg.RequestID, "pin content", err)
		return
	}

	h.ack(sender, msg.RequestID)
	h.broadcast(msg.SessionID, sender.ID(), &protocol.ContentPinned{
		SessionID: msg.SessionID,
		ContentID: msg.ContentID,
		Pinned:    true,
	})
}

func (h *Hub) handleUnpinContent(ctx context.Context, sender session.Sender, msg *protocol.UnpinContent) {
	if !h.authorized(sender, msg.SessionID, msg.Token) {
		h.nack(sender, msg.RequestID, protocol.ErrCodeNotAuthenticated, "not authenticated")
		return
	}
	h.registry.Touch(msg.SessionID)

	switch err := h.evictor.UnpinContent(ctx, msg.ContentID); {
	case errors.Is(err, store.ErrNotFound):
		h.nack(sender, msg.RequestID, protocol.ErrCodeContentNotFound, "content not found")
		return
	case err != nil:
		h.internalError(sender, msg.RequestID, "unpin content", err)
		return
	}

	h.ack(sender, msg.RequestID)
	h.broadcast(msg.SessionID, sender.ID(), &protocol.ContentPinned{
		SessionID: msg.SessionID,
		ContentID: msg.ContentID,
		Pinned:    false,
	})
}

func (h *Hub) handleUpdateMetadata(ctx context.Context, sender session.Sender, msg *protocol.UpdateMetadata) {
	if !h.authorized(sender, msg.SessionID, msg.Token) {
		h.nack(sender, msg.RequestID, protocol.ErrCodeNotAuthenticated, "not authenticated")
		return
	}
	h.registry.Touch(msg.SessionID)

	switch err := h.contents.UpdateMetadata(ctx, msg.ContentID, msg.Metadata); {
	case errors.Is(err, store.ErrNotFound):
		h.nack(sender, msg.RequestID, protocol.ErrCodeContentNotFound, "content not found")
		return
	case err != nil:
		h.internalError(sender, msg.RequestID, "update metadata", err)
		return
	}

	h.ack(sender, msg.RequestID)

	rec, err := h.contents.Get(ctx, msg.ContentID)
	if err != nil {
		h.logger.WithError(err).Warn("reload content after metadata update failed")
		return
	}
	h.broadcast(msg.SessionID, sender.ID(), &protocol.ContentUpdated{
		SessionID: msg.SessionID,
		Info:      infoFromRecord(rec),
	})
}

// handlePing is a pure liveness and validity check with no side effects.
func (h *Hub) handlePing(sender session.Sender, msg *protocol.Ping) {
	h.send(sender, &protocol.PingAck{
		RequestID: msg.RequestID,
		Valid:     h.registry.ValidateToken(sender.ID(), msg.Token, msg.SessionID),
	})
}

func (h *Hub) handleLeave(ctx context.Context, sender session.Sender, msg *protocol.Leave) {
	wipe := msg.CleanupContent && h.authorized(sender, msg.SessionID, msg.Token)

	sessionID, removed := h.registry.RemoveClient(sender.ID())
	if removed {
		h.broadcast(sessionID, sender.ID(), &protocol.ClientLeft{
			SessionID: sessionID,
			ClientID:  sender.ID(),
		})
	}

	if wipe {
		h.DropPending(msg.SessionID)
		if err := h.evictor.CleanupAllSessionContent(ctx, msg.SessionID); err != nil {
			h.logger.WithError(err).WithField("session", msg.SessionID).
				Warn("leave-and-wipe cleanup failed")
		}
	}
}

// DropPending discards a session's in-flight announcements. Called when the
// session's content is wiped or the session expires; an abandoned
// announcement must not outlive its session.
func (h *Hub) DropPending(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.pending {
		if key.sessionID == sessionID {
			delete(h.pending, key)
		}
	}
}
