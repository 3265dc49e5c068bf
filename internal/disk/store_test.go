package disk

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s
}

func TestSaveAndReadChunk(t *testing.T) {
	s := newTestStore(t)

	data := []byte("encrypted chunk payload")
	if err := s.SaveChunk(data, "s1", "c1", 0); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	got, err := s.ReadChunk("s1", "c1", 0)
	if err != nil {
		t.Fatalf("ReadChunk failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadChunk returned %q, want %q", got, data)
	}
}

func TestSaveChunkOverwriteIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveChunk([]byte("first"), "s1", "c1", 2); err != nil {
		t.Fatalf("first SaveChunk failed: %v", err)
	}
	if err := s.SaveChunk([]byte("second"), "s1", "c1", 2); err != nil {
		t.Fatalf("second SaveChunk failed: %v", err)
	}

	got, err := s.ReadChunk("s1", "c1", 2)
	if err != nil {
		t.Fatalf("ReadChunk failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("expected overwritten chunk, got %q", got)
	}
}

func TestReadChunkNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadChunk("s1", "missing", 0)
	if !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestStreamContentInOrder(t *testing.T) {
	s := newTestStore(t)

	chunks := [][]byte{[]byte("zero"), []byte("one"), []byte("two")}
	// Save out of order; streaming must still read 0..n-1.
	for _, i := range []int{2, 0, 1} {
		if err := s.SaveChunk(chunks[i], "s1", "c1", i); err != nil {
			t.Fatalf("SaveChunk %d failed: %v", i, err)
		}
	}

	var gotIndexes []int
	var gotData [][]byte
	err := s.StreamContent("s1", "c1", 3, func(index int, data []byte) error {
		gotIndexes = append(gotIndexes, index)
		gotData = append(gotData, data)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamContent failed: %v", err)
	}

	for i, idx := range gotIndexes {
		if idx != i {
			t.Errorf("chunk %d streamed at position %d", idx, i)
		}
		if !bytes.Equal(gotData[i], chunks[i]) {
			t.Errorf("chunk %d: got %q, want %q", i, gotData[i], chunks[i])
		}
	}
}

func TestStreamContentMissingChunk(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveChunk([]byte("zero"), "s1", "c1", 0); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	err := s.StreamContent("s1", "c1", 2, func(int, []byte) error { return nil })
	if !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestRemoveContentMissingIsNoop(t *testing.T) {
	s := newTestStore(t)

	if err := s.RemoveContent("s1", "never-existed"); err != nil {
		t.Errorf("RemoveContent on missing dir should be a no-op, got %v", err)
	}
}

func TestRemoveContentDeletesFiles(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveChunk([]byte("data"), "s1", "c1", 0); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	if err := s.RemoveContent("s1", "c1"); err != nil {
		t.Fatalf("RemoveContent failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), "s1", "c1")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected content dir gone, stat returned %v", err)
	}
}

func TestFindChunkAcrossSessions(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveChunk([]byte("payload"), "session-b", "c9", 0); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	got, err := s.FindChunk("c9", 0)
	if err != nil {
		t.Fatalf("FindChunk failed: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("FindChunk returned %q", got)
	}

	if _, err := s.FindChunk("unknown", 0); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound for unknown content, got %v", err)
	}
}

func TestRemoveContentAnySession(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveChunk([]byte("a"), "s1", "c1", 0); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	if err := s.RemoveContentAnySession("c1"); err != nil {
		t.Fatalf("RemoveContentAnySession failed: %v", err)
	}
	if _, err := s.ReadChunk("s1", "c1", 0); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected chunk gone, got %v", err)
	}
}
