package protocol

type MessageType uint16

const (
	MsgPing           MessageType = 0x0001
	MsgPingAck        MessageType = 0x0002
	MsgJoin           MessageType = 0x0010
	MsgJoinAck        MessageType = 0x0011
	MsgClientJoined   MessageType = 0x0012
	MsgClientLeft     MessageType = 0x0013
	MsgLeave          MessageType = 0x0014
	MsgSessionExpired MessageType = 0x0015
	MsgContent        MessageType = 0x0020
	MsgChunk          MessageType = 0x0021
	MsgAck            MessageType = 0x0022
	MsgPaginationInfo MessageType = 0x0023
	MsgListContent    MessageType = 0x0030
	MsgListContentAck MessageType = 0x0031
	MsgRemoveContent  MessageType = 0x0040
	MsgContentRemoved MessageType = 0x0041
	MsgPinContent     MessageType = 0x0050
	MsgUnpinContent   MessageType = 0x0051
	MsgContentPinned  MessageType = 0x0052
	MsgUpdateMetadata MessageType = 0x0060
	MsgContentUpdated MessageType = 0x0061
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "PING"
	case MsgPingAck:
		return "PING_ACK"
	case MsgJoin:
		return "JOIN"
	case MsgJoinAck:
		return "JOIN_ACK"
	case MsgClientJoined:
		return "CLIENT_JOINED"
	case MsgClientLeft:
		return "CLIENT_LEFT"
	case MsgLeave:
		return "LEAVE"
	case MsgSessionExpired:
		return "SESSION_EXPIRED"
	case MsgContent:
		return "CONTENT"
	case MsgChunk:
		return "CHUNK"
	case MsgAck:
		return "ACK"
	case MsgPaginationInfo:
		return "PAGINATION_INFO"
	case MsgListContent:
		return "LIST_CONTENT"
	case MsgListContentAck:
		return "LIST_CONTENT_ACK"
	case MsgRemoveContent:
		return "REMOVE_CONTENT"
	case MsgContentRemoved:
		return "CONTENT_REMOVED"
	case MsgPinContent:
		return "PIN_CONTENT"
	case MsgUnpinContent:
		return "UNPIN_CONTENT"
	case MsgContentPinned:
		return "CONTENT_PINNED"
	case MsgUpdateMetadata:
		return "UPDATE_METADATA"
	case MsgContentUpdated:
		return "CONTENT_UPDATED"
	default:
		return "UNKNOWN"
	}
}

type ErrorCode uint16

const (
	ErrCodeNone             ErrorCode = 0x0000
	ErrCodeAuthFailed       ErrorCode = 0x0001
	ErrCodeNotAuthenticated ErrorCode = 0x0002
	ErrCodeSessionNotFound  ErrorCode = 0x0003
	ErrCodeContentNotFound  ErrorCode = 0x0004
	ErrCodeQuotaExceeded    ErrorCode = 0x0005
	ErrCodeInternal         ErrorCode = 0x00FF
)

func (e ErrorCode) String() string {
	switch e {
	case ErrCodeNone:
		return "NONE"
	case ErrCodeAuthFailed:
		return "AUTH_FAILED"
	case ErrCodeNotAuthenticated:
		return "NOT_AUTHENTICATED"
	case ErrCodeSessionNotFound:
		return "SESSION_NOT_FOUND"
	case ErrCodeContentNotFound:
		return "CONTENT_NOT_FOUND"
	case ErrCodeQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case ErrCodeInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}
