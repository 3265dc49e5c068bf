// Package protocol defines the wire messages exchanged between clients and
// the sync server, and the codec that frames them.
package protocol

type Message interface {
	Type() MessageType
}

// Fingerprint is a self-encrypted passphrase verifier. The server compares
// it byte-for-byte and never learns the passphrase.
type Fingerprint struct {
	IV   []byte
	Data []byte
}

type ClientInfo struct {
	ClientID    string
	ClientName  string
	ConnectedAt int64
}

// ContentInfo carries the metadata for one shared item. EncryptionIV and
// Metadata are opaque to the server and forwarded untouched.
type ContentInfo struct {
	ContentID    string
	SessionID    string
	ContentType  string
	MimeType     string
	TotalChunks  int
	TotalSize    int64
	CreatedAt    int64
	SenderID     string
	SenderName   string
	Timestamp    int64
	EncryptionIV []byte
	Metadata     string
	IsComplete   bool
	IsPinned     bool
	IsLargeFile  bool
}

type Ack struct {
	RequestID uint64
	Success   bool
	Code      ErrorCode
	Error     string
}

func (Ack) Type() MessageType { return MsgAck }

type Chunk struct {
	RequestID   uint64
	SessionID   string
	Token       string
	ContentID   string
	ChunkIndex  int
	TotalChunks int
	Data        []byte
	IV          []byte
}

func (Chunk) Type() MessageType { return MsgChunk }

type ClientJoined struct {
	SessionID string
	Client    ClientInfo
}

func (ClientJoined) Type() MessageType { return MsgClientJoined }

type ClientLeft struct {
	SessionID string
	ClientID  string
}

func (ClientLeft) Type() MessageType { return MsgClientLeft }

type Content struct {
	RequestID uint64
	SessionID string
	Token     string
	Info      ContentInfo
	// Data holds the full payload for single-chunk items sent inline.
	Data []byte
}

func (Content) Type() MessageType { return MsgContent }

type ContentPinned struct {
	SessionID string
	ContentID string
	Pinned    bool
}

func (ContentPinned) Type() MessageType { return MsgContentPinned }

type ContentRemoved struct {
	SessionID string
	ContentID string
}

func (ContentRemoved) Type() MessageType { return MsgContentRemoved }

type ContentUpdated struct {
	SessionID string
	Info      ContentInfo
}

func (ContentUpdated) Type() MessageType { return MsgContentUpdated }

type Join struct {
	RequestID        uint64
	SessionID        string
	ClientName       string
	Fingerprint      Fingerprint
	CachedContentIDs []string
}

func (Join) Type() MessageType { return MsgJoin }

type JoinAck struct {
	RequestID uint64
	Success   bool
	Code      ErrorCode
	Error     string
	Token     string
	Clients   []ClientInfo
}

func (JoinAck) Type() MessageType { return MsgJoinAck }

type Leave struct {
	RequestID      uint64
	SessionID      string
	Token          string
	CleanupContent bool
}

func (Leave) Type() MessageType { return MsgLeave }

type ListContent struct {
	RequestID uint64
	SessionID string
	Token     string
	Offset    int
	Limit     int
}

func (ListContent) Type() MessageType { return MsgListContent }

type ListContentAck struct {
	RequestID  uint64
	Success    bool
	Code       ErrorCode
	Error      string
	Items      []ContentInfo
	TotalCount int
	HasMore    bool
}

func (ListContentAck) Type() MessageType { return MsgListContentAck }

type PaginationInfo struct {
	SessionID  string
	TotalCount int
	PageSize   int
	HasMore    bool
}

func (PaginationInfo) Type() MessageType { return MsgPaginationInfo }

type Ping struct {
	RequestID uint64
	SessionID string
	Token     string
}

func (Ping) Type() MessageType { return MsgPing }

type PingAck struct {
	RequestID uint64
	Valid     bool
}

func (PingAck) Type() MessageType { return MsgPingAck }

type PinContent struct {
	RequestID uint64
	SessionID string
	Token     string
	ContentID string
}

func (PinContent) Type() MessageType { return MsgPinContent }

type RemoveContent struct {
	RequestID uint64
	SessionID string
	Token     string
	ContentID string
}

func (RemoveContent) Type() MessageType { return MsgRemoveContent }

type SessionExpired struct {
	SessionID string
	Message   string
}

func (SessionExpired) Type() MessageType { return MsgSessionExpired }

type UnpinContent struct {
	RequestID uint64
	SessionID string
	Token     string
	ContentID string
}

func (UnpinContent) Type() MessageType { return MsgUnpinContent }

type UpdateMetadata struct {
	RequestID uint64
	SessionID string
	Token     string
	ContentID string
	Metadata  string
}

func (UpdateMetadata) Type() MessageType { return MsgUpdateMetadata }
