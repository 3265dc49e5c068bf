package protocol

import (
	"bytes"
	"testing"
)

func TestCodecJoinRoundtrip(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	join := &Join{
		RequestID:  7,
		SessionID:  "session-1",
		ClientName: "Alice",
		Fingerprint: Fingerprint{
			IV:   []byte{0x01, 0x02, 0x03},
			Data: []byte("encrypted-verifier"),
		},
		CachedContentIDs: []string{"c1", "c2"},
	}

	if err := codec.Encode(&buf, join); err != nil {
		t.Fatalf("Encode Join failed: %v", err)
	}

	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Join failed: %v", err)
	}

	decodedJoin, ok := decoded.(*Join)
	if !ok {
		t.Fatalf("Expected *Join, got %T", decoded)
	}

	if decodedJoin.SessionID != "session-1" {
		t.Errorf("Expected session-1, got %s", decodedJoin.SessionID)
	}

	if !bytes.Equal(decodedJoin.Fingerprint.Data, []byte("encrypted-verifier")) {
		t.Errorf("Fingerprint data mismatch")
	}

	if len(decodedJoin.CachedContentIDs) != 2 {
		t.Errorf("Expected 2 cached content ids, got %d", len(decodedJoin.CachedContentIDs))
	}
}

func TestCodecChunkRoundtrip(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	chunkData := []byte("opaque encrypted chunk bytes")
	chunk := &Chunk{
		SessionID:   "session-1",
		Token:       "tok",
		ContentID:   "c1",
		ChunkIndex:  3,
		TotalChunks: 8,
		Data:        chunkData,
		IV:          []byte{0xAA, 0xBB},
	}

	if err := codec.Encode(&buf, chunk); err != nil {
		t.Fatalf("Encode Chunk failed: %v", err)
	}

	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Chunk failed: %v", err)
	}

	decodedChunk, ok := decoded.(*Chunk)
	if !ok {
		t.Fatalf("Expected *Chunk, got %T", decoded)
	}

	if decodedChunk.ChunkIndex != 3 {
		t.Errorf("Expected chunk index 3, got %d", decodedChunk.ChunkIndex)
	}

	if !bytes.Equal(decodedChunk.Data, chunkData) {
		t.Errorf("Chunk data mismatch")
	}
}

func TestCodecContentWithInfo(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	content := &Content{
		SessionID: "session-1",
		Info: ContentInfo{
			ContentID:    "c1",
			ContentType:  "file",
			MimeType:     "application/pdf",
			TotalChunks:  4,
			TotalSize:    4096,
			EncryptionIV: []byte{0x01},
			Metadata:     `{"fileName":"report.pdf"}`,
		},
		Data: []byte("inline"),
	}

	if err := codec.Encode(&buf, content); err != nil {
		t.Fatalf("Encode Content failed: %v", err)
	}

	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode Content failed: %v", err)
	}

	decodedContent, ok := decoded.(*Content)
	if !ok {
		t.Fatalf("Expected *Content, got %T", decoded)
	}

	if decodedContent.Info.Metadata != `{"fileName":"report.pdf"}` {
		t.Errorf("Metadata blob mismatch: %s", decodedContent.Info.Metadata)
	}

	if decodedContent.Info.TotalChunks != 4 {
		t.Errorf("Expected 4 total chunks, got %d", decodedContent.Info.TotalChunks)
	}
}

func TestCodecEncodeDecodeBytes(t *testing.T) {
	codec := NewCodec()

	data, err := codec.EncodeToBytes(&PingAck{RequestID: 1, Valid: true})
	if err != nil {
		t.Fatalf("EncodeToBytes failed: %v", err)
	}

	if len(data) == 0 {
		t.Error("Expected non-empty data")
	}

	decoded, err := codec.DecodeFromBytes(data)
	if err != nil {
		t.Fatalf("DecodeFromBytes failed: %v", err)
	}

	ack, ok := decoded.(*PingAck)
	if !ok {
		t.Fatalf("Expected *PingAck, got %T", decoded)
	}

	if !ack.Valid {
		t.Error("Expected valid ping ack")
	}
}

func TestCodecEmptyList(t *testing.T) {
	codec := NewCodec()
	var buf bytes.Buffer

	ack := &ListContentAck{Success: true, Items: []ContentInfo{}}

	if err := codec.Encode(&buf, ack); err != nil {
		t.Fatalf("Encode empty ListContentAck failed: %v", err)
	}

	decoded, err := codec.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode empty ListContentAck failed: %v", err)
	}

	decodedAck, ok := decoded.(*ListContentAck)
	if !ok {
		t.Fatalf("Expected *ListContentAck, got %T", decoded)
	}

	if len(decodedAck.Items) != 0 {
		t.Errorf("Expected 0 items, got %d", len(decodedAck.Items))
	}
}

func TestErrorCodeString(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected string
	}{
		{ErrCodeAuthFailed, "AUTH_FAILED"},
		{ErrCodeNotAuthenticated, "NOT_AUTHENTICATED"},
		{ErrCodeSessionNotFound, "SESSION_NOT_FOUND"},
		{ErrCodeQuotaExceeded, "QUOTA_EXCEEDED"},
		{ErrorCode(0xFFFE), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.code.String(); got != tt.expected {
			t.Errorf("%v.String() = %s, want %s", tt.code, got, tt.expected)
		}
	}
}

func TestMessageTypeString(t *testing.T) {
	tests := []struct {
		expected string
		msgType  MessageType
	}{
		{"JOIN", MsgJoin},
		{"JOIN_ACK", MsgJoinAck},
		{"CONTENT", MsgContent},
		{"CHUNK", MsgChunk},
		{"SESSION_EXPIRED", MsgSessionExpired},
		{"PING", MsgPing},
		{"UNKNOWN", MessageType(0xFFFF)},
	}

	for _, tt := range tests {
		if got := tt.msgType.String(); got != tt.expected {
			t.Errorf("%v.String() = %s, want %s", tt.msgType, got, tt.expected)
		}
	}
}
