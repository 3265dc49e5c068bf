// Package server exposes the sync protocol over websocket and the streaming
// download endpoint for large files.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vaultdrop/vaultdrop/internal/disk"
	"github.com/vaultdrop/vaultdrop/internal/hub"
	"github.com/vaultdrop/vaultdrop/internal/protocol"
	"github.com/vaultdrop/vaultdrop/internal/session"
	"github.com/vaultdrop/vaultdrop/internal/store"
)

type Server struct {
	hub      *hub.Hub
	registry *session.Registry
	contents *store.ContentStore
	chunks   *store.ChunkStore
	disk     *disk.Store
	codec    *protocol.Codec
	logger   *logrus.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func New(addr string, h *hub.Hub, registry *session.Registry, contents *store.ContentStore, chunks *store.ChunkStore, diskStore *disk.Store, logger *logrus.Logger) *Server {
	s := &Server{
		hub:      h,
		registry: registry,
		contents: contents,
		chunks:   chunks,
		disk:     diskStore,
		codec:    protocol.NewCodec(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16384,
			WriteBufferSize: 16384,
			CheckOrigin: func(r *http.Request) bool {
				// Clients authenticate with fingerprints, not cookies.
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sync", s.handleSync)
	mux.HandleFunc("GET /download/{contentId}", s.handleDownload)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// handleSync upgrades the connection and pumps decoded messages into the
// hub until the peer goes away.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	client := newWSConn(uuid.NewString(), conn, s.codec, s.logger)
	s.logger.WithField("client", client.ID()).Info("client connected")

	go client.writeLoop()
	defer func() {
		client.close()
		s.hub.HandleDisconnect(client)
		s.logger.WithField("client", client.ID()).Info("client disconnected")
	}()

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).WithField("client", client.ID()).
					Debug("websocket read failed")
			}
			return
		}

		msg, err := s.codec.DecodeFromBytes(data)
		if err != nil {
			s.logger.WithError(err).WithField("client", client.ID()).
				Warn("undecodable frame")
			continue
		}

		s.hub.Handle(ctx, client, msg)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
