package protocol

import (
	"bytes"
	"encoding/gob"
	"io"
)

func init() {
	gob.Register(&Ack{})
	gob.Register(&Chunk{})
	gob.Register(&ClientJoined{})
	gob.Register(&ClientLeft{})
	gob.Register(&Content{})
	gob.Register(&ContentPinned{})
	gob.Register(&ContentRemoved{})
	gob.Register(&ContentUpdated{})
	gob.Register(&Join{})
	gob.Register(&JoinAck{})
	gob.Register(&Leave{})
	gob.Register(&ListContent{})
	gob.Register(&ListContentAck{})
	gob.Register(&PaginationInfo{})
	gob.Register(&Ping{})
	gob.Register(&PingAck{})
	gob.Register(&PinContent{})
	gob.Register(&RemoveContent{})
	gob.Register(&SessionExpired{})
	gob.Register(&UnpinContent{})
	gob.Register(&UpdateMetadata{})
}

type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(w io.Writer, msg Message) error {
	return gob.NewEncoder(w).Encode(&msg)
}

func (c *Codec) Decode(r io.Reader) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(r).Decode(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Codec) EncodeToBytes(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) DecodeFromBytes(data []byte) (Message, error) {
	return c.Decode(bytes.NewReader(data))
}
