// Package eviction keeps each session's stored content bounded.
package eviction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vaultdrop/vaultdrop/internal/disk"
	"github.com/vaultdrop/vaultdrop/internal/store"
)

var ErrPinLimitReached = errors.New("pinned item limit reached")

type Manager struct {
	contents *store.ContentStore
	disk     *disk.Store
	logger   *logrus.Logger

	maxItems  int
	maxPinned int
	interval  time.Duration
}

func NewManager(contents *store.ContentStore, diskStore *disk.Store, maxItems, maxPinned int, interval time.Duration, logger *logrus.Logger) *Manager {
	return &Manager{
		contents:  contents,
		disk:      diskStore,
		logger:    logger,
		maxItems:  maxItems,
		maxPinned: maxPinned,
		interval:  interval,
	}
}

// CleanupOldContent keeps the maxItems most recent non-pinned items for a
// session and deletes the remainder, rows and files together. Pinned items
// never count against the cap and are never removed here. Returns the ids
// that were removed.
func (m *Manager) CleanupOldContent(ctx context.Context, sessionID string) ([]string, error) {
	recs, err := m.contents.ListEvictable(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing evictable content for %s: %w", sessionID, err)
	}
	if len(recs) <= m.maxItems {
		return nil, nil
	}

	var removed []string
	for _, victim := range recs[m.maxItems:] {
		victim := victim
		err := m.contents.Delete(ctx, victim.ID, func() error {
			return m.disk.RemoveContent(victim.SessionID, victim.ID)
		})
		if err != nil {
			// Retried on the next sweep; the transaction rolled back so
			// rows and files are still consistent.
			m.logger.WithError(err).WithField("content", victim.ID).
				Warn("failed to evict content")
			continue
		}
		removed = append(removed, victim.ID)
	}

	if len(removed) > 0 {
		m.logger.WithFields(logrus.Fields{
			"session": sessionID,
			"removed": len(removed),
		}).Info("evicted old content")
	}
	return removed, nil
}

// CleanupAllSessionContent wipes every content item for a session,
// including pinned ones. Used for explicit leave-and-wipe requests and
// session expiry.
func (m *Manager) CleanupAllSessionContent(ctx context.Context, sessionID string) error {
	return m.contents.DeleteBySession(ctx, sessionID, func() error {
		return m.disk.RemoveSession(sessionID)
	})
}

// PinContent exempts a content item from eviction, subject to the
// per-session pin ceiling. Exceeding the ceiling fails without mutating
// anything.
func (m *Manager) PinContent(ctx context.Context, contentID string) error {
	rec, err := m.contents.Get(ctx, contentID)
	if err != nil {
		return err
	}
	if rec.IsPinned {
		return nil
	}

	pinned, err := m.contents.CountPinned(ctx, rec.SessionID)
	if err != nil {
		return fmt.Errorf("counting pinned content for %s: %w", rec.SessionID, err)
	}
	if pinned >= int64(m.maxPinned) {
		return ErrPinLimitReached
	}

	return m.contents.SetPinned(ctx, contentID, true)
}

func (m *Manager) UnpinContent(ctx context.Context, contentID string) error {
	return m.contents.SetPinned(ctx, contentID, false)
}

// Run drives the periodic sweep until ctx is cancelled. Failures are logged
// and retried on the next tick, never fatal.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	ids, err := m.contents.SessionIDs(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("eviction sweep failed to list sessions")
		return
	}
	for _, sessionID := range ids {
		if _, err := m.CleanupOldContent(ctx, sessionID); err != nil {
			m.logger.WithError(err).WithField("session", sessionID).
				Warn("eviction sweep failed for session")
		}
	}
}
