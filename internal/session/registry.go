// Package session tracks active sessions, their connected clients, and the
// per-connection tokens that guard protected operations. All state is
// in-memory and process-local.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vaultdrop/vaultdrop/internal/protocol"
)

var ErrAuthenticationFailed = errors.New("fingerprint does not match session")

const sweepInterval = 60 * time.Second

// Sender is the handle a client connection exposes for pushing events.
// Sending to a connection that is already gone must be a harmless no-op.
type Sender interface {
	ID() string
	Send(msg protocol.Message) error
}

type Client struct {
	ID          string
	Name        string
	ConnectedAt time.Time
	conn        Sender
}

func (c *Client) Send(msg protocol.Message) error {
	return c.conn.Send(msg)
}

func (c *Client) Info() protocol.ClientInfo {
	return protocol.ClientInfo{
		ClientID:    c.ID,
		ClientName:  c.Name,
		ConnectedAt: c.ConnectedAt.Unix(),
	}
}

type Session struct {
	ID           string
	Fingerprint  protocol.Fingerprint
	CreatedAt    time.Time
	LastActivity time.Time
	Clients      map[string]*Client
}

type tokenEntry struct {
	token     string
	sessionID string
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	tokens   map[string]tokenEntry
	timeout  time.Duration
	logger   *logrus.Logger
	onExpire func(sessionID string)

	// now is swapped out by tests to drive the idle sweep.
	now func() time.Time
}

func NewRegistry(timeout time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		tokens:   make(map[string]tokenEntry),
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Join authenticates a client against a session. The first join to an unseen
// session id establishes its fingerprint; later joins must present a
// byte-for-byte match. On success the client is bound to the session
// (replacing any stale entry for the same connection id) and a fresh token
// is issued. The returned peer list excludes the joiner.
func (r *Registry) Join(sessionID string, fp protocol.Fingerprint, clientName string, conn Sender) (string, []protocol.ClientInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	sess, ok := r.sessions[sessionID]
	if !ok {
		sess = &Session{
			ID:           sessionID,
			Fingerprint:  fp,
			CreatedAt:    now,
			LastActivity: now,
			Clients:      make(map[string]*Client),
		}
		r.sessions[sessionID] = sess
	} else if !fingerprintsMatch(sess.Fingerprint, fp) {
		return "", nil, ErrAuthenticationFailed
	}

	clientID := conn.ID()

	// A connection switching sessions must not linger as a ghost member of
	// the one it left; detach it there first.
	if entry, ok := r.tokens[clientID]; ok && entry.sessionID != sessionID {
		r.detachLocked(clientID, entry.sessionID)
	}

	peers := make([]protocol.ClientInfo, 0, len(sess.Clients))
	for id, c := range sess.Clients {
		if id != clientID {
			peers = append(peers, c.Info())
		}
	}

	sess.Clients[clientID] = &Client{
		ID:          clientID,
		Name:        clientName,
		ConnectedAt: now,
		conn:        conn,
	}
	sess.LastActivity = now

	token := uuid.NewString()
	r.tokens[clientID] = tokenEntry{token: token, sessionID: sessionID}

	return token, peers, nil
}

// ValidateToken reports whether the client holds a live token for the
// session. It has no side effects; a stale token is "not authenticated",
// never an error.
func (r *Registry) ValidateToken(clientID, token, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[clientID]
	if !ok || entry.token != token || entry.sessionID != sessionID {
		return false
	}
	_, ok = r.sessions[sessionID]
	return ok
}

// Touch refreshes a session's activity clock.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.LastActivity = r.now()
	}
}

// RemoveClient detaches the client and invalidates its token. When the last
// client leaves, the session is deleted immediately; an empty session has
// nothing left to expire.
func (r *Registry) RemoveClient(clientID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[clientID]
	if !ok {
		return "", false
	}
	delete(r.tokens, clientID)
	return entry.sessionID, r.detachLocked(clientID, entry.sessionID)
}

// detachLocked drops a client from a session's member map, deleting the
// session once it empties.
func (r *Registry) detachLocked(clientID, sessionID string) bool {
	sess, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	delete(sess.Clients, clientID)
	if len(sess.Clients) == 0 {
		delete(r.sessions, sessionID)
	}
	return true
}

// Peers snapshots a session's clients, minus exceptClientID, for fan-out.
func (r *Registry) Peers(sessionID, exceptClientID string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	peers := make([]*Client, 0, len(sess.Clients))
	for id, c := range sess.Clients {
		if id != exceptClientID {
			peers = append(peers, c)
		}
	}
	return peers
}

// ResolveToken maps a bare token back to its session, for HTTP requests
// that carry no connection identity.
func (r *Registry) ResolveToken(token string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.tokens {
		if subtle.ConstantTimeCompare([]byte(entry.token), []byte(token)) == 1 {
			return entry.sessionID, true
		}
	}
	return "", false
}

// GetClient resolves a connected client by its connection id.
func (r *Registry) GetClient(clientID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[clientID]
	if !ok {
		return nil, false
	}
	sess, ok := r.sessions[entry.sessionID]
	if !ok {
		return nil, false
	}
	c, ok := sess.Clients[clientID]
	return c, ok
}

func (r *Registry) HasSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok
}

func (r *Registry) ClientCount(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(sess.Clients)
}

// Run drives the idle sweep until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep expires every session idle past the timeout. Attached clients are
// notified before the session and its tokens are deleted.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, sess := range r.sessions {
		if now.Sub(sess.LastActivity) < r.timeout {
			continue
		}
		r.expireLocked(sess)
		r.logger.WithFields(logrus.Fields{
			"session": id,
			"idle":    now.Sub(sess.LastActivity).Round(time.Second).String(),
		}).Info("expired idle session")
	}
}

// OnExpire registers a callback invoked whenever a session is expired or
// force-ended. The callback runs with the registry lock held and must not
// call back into the registry.
func (r *Registry) OnExpire(fn func(sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

// Expire forcibly ends a session regardless of its activity clock.
func (r *Registry) Expire(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		r.expireLocked(sess)
	}
}

func (r *Registry) expireLocked(sess *Session) {
	expired := &protocol.SessionExpired{
		SessionID: sess.ID,
		Message:   "session expired due to inactivity",
	}
	for clientID, c := range sess.Clients {
		if err := c.Send(expired); err != nil {
			r.logger.WithError(err).WithField("client", clientID).
				Debug("failed to notify client of session expiry")
		}
		delete(r.tokens, clientID)
	}
	delete(r.sessions, sess.ID)
	if r.onExpire != nil {
		r.onExpire(sess.ID)
	}
}

// fingerprintsMatch compares both fingerprint parts in constant time. Both
// comparisons always run so a mismatch in one does not short-circuit.
func fingerprintsMatch(a, b protocol.Fingerprint) bool {
	ivOK := subtle.ConstantTimeCompare(a.IV, b.IV)
	dataOK := subtle.ConstantTimeCompare(a.Data, b.Data)
	return ivOK&dataOK == 1
}
