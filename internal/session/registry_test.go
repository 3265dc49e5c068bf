package session

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vaultdrop/vaultdrop/internal/protocol"
)

type fakeConn struct {
	id   string
	mu   sync.Mutex
	msgs []protocol.Message
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.msgs...)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func fpA() protocol.Fingerprint {
	return protocol.Fingerprint{IV: []byte{1, 2, 3}, Data: []byte("verifier-a")}
}

func fpB() protocol.Fingerprint {
	return protocol.Fingerprint{IV: []byte{1, 2, 3}, Data: []byte("verifier-b")}
}

func TestJoinNewSession(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	conn := &fakeConn{id: "client-a"}

	token, peers, err := r.Join("s1", fpA(), "Alice", conn)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if token == "" {
		t.Error("expected a non-empty token")
	}
	if len(peers) != 0 {
		t.Errorf("expected empty peer list on first join, got %d", len(peers))
	}
	if !r.ValidateToken("client-a", token, "s1") {
		t.Error("expected issued token to validate")
	}
}

func TestJoinMatchingFingerprint(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}

	if _, _, err := r.Join("s1", fpA(), "Alice", a); err != nil {
		t.Fatalf("first Join failed: %v", err)
	}

	_, peers, err := r.Join("s1", fpA(), "Bob", b)
	if err != nil {
		t.Fatalf("second Join failed: %v", err)
	}
	if len(peers) != 1 || peers[0].ClientName != "Alice" {
		t.Errorf("expected Alice in peer list, got %+v", peers)
	}
	if r.ClientCount("s1") != 2 {
		t.Errorf("expected 2 clients, got %d", r.ClientCount("s1"))
	}
}

func TestJoinFingerprintMismatch(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}
	c := &fakeConn{id: "client-c"}

	if _, _, err := r.Join("s1", fpA(), "Alice", a); err != nil {
		t.Fatalf("first Join failed: %v", err)
	}

	_, _, err := r.Join("s1", fpB(), "Mallory", c)
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if r.ClientCount("s1") != 1 {
		t.Errorf("failed join must not mutate the session, got %d clients", r.ClientCount("s1"))
	}
	if r.ValidateToken("client-c", "anything", "s1") {
		t.Error("rejected client must hold no valid token")
	}
}

func TestRejoinReplacesStaleEntry(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}

	token1, _, err := r.Join("s1", fpA(), "Alice", a)
	if err != nil {
		t.Fatalf("first Join failed: %v", err)
	}
	token2, peers, err := r.Join("s1", fpA(), "Alice", a)
	if err != nil {
		t.Fatalf("re-Join failed: %v", err)
	}

	if len(peers) != 0 {
		t.Errorf("rejoining client must not see itself as a peer, got %d", len(peers))
	}
	if r.ClientCount("s1") != 1 {
		t.Errorf("expected 1 client after rejoin, got %d", r.ClientCount("s1"))
	}
	if r.ValidateToken("client-a", token1, "s1") && token1 != token2 {
		t.Error("old token should have been replaced")
	}
	if !r.ValidateToken("client-a", token2, "s1") {
		t.Error("fresh token should validate")
	}
}

func TestJoinOtherSessionDetachesOld(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}

	if _, _, err := r.Join("s1", fpA(), "Alice", a); err != nil {
		t.Fatalf("Join s1 failed: %v", err)
	}
	if _, _, err := r.Join("s1", fpA(), "Bob", b); err != nil {
		t.Fatalf("Join s1 failed: %v", err)
	}
	if _, _, err := r.Join("s2", fpB(), "Alice", a); err != nil {
		t.Fatalf("Join s2 failed: %v", err)
	}

	if r.ClientCount("s1") != 1 {
		t.Errorf("expected 1 client left in s1, got %d", r.ClientCount("s1"))
	}
	for _, c := range r.Peers("s1", "") {
		if c.ID == "client-a" {
			t.Error("client-a must not linger in s1 after moving to s2")
		}
	}

	// Disconnecting the mover must only touch the session it is in now.
	sessionID, removed := r.RemoveClient("client-a")
	if !removed || sessionID != "s2" {
		t.Fatalf("RemoveClient returned (%q, %v)", sessionID, removed)
	}
	if r.HasSession("s2") {
		t.Error("emptied s2 must be deleted")
	}
	if r.ClientCount("s1") != 1 {
		t.Errorf("s1 must be untouched by the disconnect, got %d clients", r.ClientCount("s1"))
	}
}

func TestJoinOtherSessionDeletesEmptiedOld(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}

	if _, _, err := r.Join("s1", fpA(), "Alice", a); err != nil {
		t.Fatalf("Join s1 failed: %v", err)
	}
	if _, _, err := r.Join("s2", fpB(), "Alice", a); err != nil {
		t.Fatalf("Join s2 failed: %v", err)
	}

	if r.HasSession("s1") {
		t.Error("s1 emptied by the move must be deleted immediately")
	}
	if r.ClientCount("s2") != 1 {
		t.Errorf("expected 1 client in s2, got %d", r.ClientCount("s2"))
	}
}

func TestValidateTokenMismatches(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}

	token, _, err := r.Join("s1", fpA(), "Alice", a)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if r.ValidateToken("client-a", "wrong", "s1") {
		t.Error("wrong token must not validate")
	}
	if r.ValidateToken("client-a", token, "other-session") {
		t.Error("token must be scoped to its session")
	}
	if r.ValidateToken("stranger", token, "s1") {
		t.Error("token must be scoped to its client")
	}
}

func TestRemoveLastClientDeletesSession(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}

	token, _, err := r.Join("s1", fpA(), "Alice", a)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	sessionID, removed := r.RemoveClient("client-a")
	if !removed || sessionID != "s1" {
		t.Fatalf("RemoveClient returned (%q, %v)", sessionID, removed)
	}
	if r.HasSession("s1") {
		t.Error("empty session must be deleted immediately")
	}
	if r.ValidateToken("client-a", token, "s1") {
		t.Error("token must be invalidated on leave")
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	r := NewRegistry(10*time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}

	token, _, err := r.Join("s1", fpA(), "Alice", a)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, _, err := r.Join("s1", fpA(), "Bob", b); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	r.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	r.Sweep()

	for _, conn := range []*fakeConn{a, b} {
		var notified bool
		for _, msg := range conn.messages() {
			if expired, ok := msg.(*protocol.SessionExpired); ok && expired.SessionID == "s1" {
				notified = true
			}
		}
		if !notified {
			t.Errorf("client %s was not notified of expiry", conn.id)
		}
	}

	if r.HasSession("s1") {
		t.Error("expired session must be removed")
	}
	if r.ValidateToken("client-a", token, "s1") {
		t.Error("tokens must die with the session")
	}
}

func TestSweepSparesActiveSessions(t *testing.T) {
	r := NewRegistry(10*time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}

	if _, _, err := r.Join("s1", fpA(), "Alice", a); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	r.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	r.Sweep()

	if !r.HasSession("s1") {
		t.Error("session within the timeout must survive the sweep")
	}
}

func TestResolveToken(t *testing.T) {
	r := NewRegistry(time.Minute, testLogger())
	a := &fakeConn{id: "client-a"}

	token, _, err := r.Join("s1", fpA(), "Alice", a)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	sessionID, ok := r.ResolveToken(token)
	if !ok || sessionID != "s1" {
		t.Errorf("ResolveToken returned (%q, %v)", sessionID, ok)
	}
	if _, ok := r.ResolveToken("bogus"); ok {
		t.Error("bogus token must not resolve")
	}
}
