package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vaultdrop/vaultdrop/internal/store"
)

// handleDownload streams a content's chunks in order without buffering the
// whole item. Large files are only ever retrieved this way; they are never
// fanned out over the realtime channel.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := bearerOrQueryToken(r)
	sessionID, ok := s.registry.ResolveToken(token)
	if !ok {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	contentID := r.PathValue("contentId")
	rec, err := s.contents.Get(r.Context(), contentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && rec.SessionID != sessionID) {
		http.Error(w, "content not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("download metadata lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !rec.IsComplete {
		http.Error(w, "content not found", http.StatusNotFound)
		return
	}

	// Content-Length is the stored ciphertext size, which is what actually
	// crosses the wire.
	chunkRows, err := s.chunks.ListByContent(r.Context(), contentID)
	if err != nil {
		s.logger.WithError(err).Error("download chunk listing failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var totalBytes int64
	for _, row := range chunkRows {
		totalBytes += row.Size
	}

	w.Header().Set("Content-Type", downloadContentType(rec.MimeType))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadFileName(rec.AdditionalMetadata, contentID)))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", totalBytes))

	err = s.disk.StreamContent(rec.SessionID, rec.ID, rec.TotalChunks, func(_ int, data []byte) error {
		_, werr := w.Write(data)
		return werr
	})
	if err != nil {
		// Headers are gone; all we can do is cut the stream and log.
		s.logger.WithError(err).WithField("content", contentID).
			Warn("download stream aborted")
	}
}

func bearerOrQueryToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func downloadContentType(mimeType string) string {
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// downloadFileName pulls a display name out of the opaque metadata blob if
// one is there; the blob is otherwise never interpreted.
func downloadFileName(metadata, fallback string) string {
	var fields struct {
		FileName string `json:"fileName"`
	}
	if err := json.Unmarshal([]byte(metadata), &fields); err == nil && fields.FileName != "" {
		return fields.FileName
	}
	return fallback
}
