// Package disk persists opaque chunk payloads on the local filesystem,
// laid out as <root>/<sessionID>/<contentID>/<chunkIndex>.bin.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

var ErrChunkNotFound = errors.New("chunk not found")

type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Initialize creates the storage root. The caller treats failure as fatal;
// nothing can be served without it.
func (s *Store) Initialize() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating storage root %s: %w", s.root, err)
	}
	return nil
}

func (s *Store) Root() string {
	return s.root
}

// SaveChunk durably writes one chunk. Re-saving the same (contentID, index)
// overwrites. The write is flushed before returning.
func (s *Store) SaveChunk(data []byte, sessionID, contentID string, index int) error {
	dir := s.contentDir(sessionID, contentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating content dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, chunkFileName(index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing chunk file %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing chunk file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing chunk file %s: %w", path, err)
	}
	return nil
}

func (s *Store) ReadChunk(sessionID, contentID string, index int) ([]byte, error) {
	path := filepath.Join(s.contentDir(sessionID, contentID), chunkFileName(index))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk file %s: %w", path, err)
	}
	return data, nil
}

// FindChunk looks a chunk up by content id alone, scanning session
// directories, for callers that have no session id on hand.
func (s *Store) FindChunk(contentID string, index int) ([]byte, error) {
	sessionID, err := s.findSession(contentID)
	if err != nil {
		return nil, err
	}
	return s.ReadChunk(sessionID, contentID, index)
}

// StreamContent reads chunks 0..totalChunks-1 in order and hands each to fn,
// so large contents never sit fully in memory.
func (s *Store) StreamContent(sessionID, contentID string, totalChunks int, fn func(index int, data []byte) error) error {
	for i := 0; i < totalChunks; i++ {
		data, err := s.ReadChunk(sessionID, contentID, i)
		if err != nil {
			return err
		}
		if err := fn(i, data); err != nil {
			return err
		}
	}
	return nil
}

// RemoveContent deletes a content's chunk directory. A missing directory is
// already the desired state, not an error.
func (s *Store) RemoveContent(sessionID, contentID string) error {
	dir := s.contentDir(sessionID, contentID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing content dir %s: %w", dir, err)
	}
	return nil
}

// RemoveContentAnySession removes the content's directory wherever it lives.
// Used when the owning session is not known at delete time.
func (s *Store) RemoveContentAnySession(contentID string) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("reading storage root %s: %w", s.root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, e.Name(), contentID)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing content dir %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) RemoveSession(sessionID string) error {
	dir := filepath.Join(s.root, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing session dir %s: %w", dir, err)
	}
	return nil
}

func (s *Store) findSession(contentID string) (string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", fmt.Errorf("reading storage root %s: %w", s.root, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), contentID)); err == nil {
			return e.Name(), nil
		}
	}
	return "", ErrChunkNotFound
}

func (s *Store) contentDir(sessionID, contentID string) string {
	return filepath.Join(s.root, sessionID, contentID)
}

func chunkFileName(index int) string {
	return strconv.Itoa(index) + ".bin"
}
