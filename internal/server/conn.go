package server

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vaultdrop/vaultdrop/internal/protocol"
)

// wsConn adapts one websocket connection to the session.Sender handle.
// Writes go through a buffered channel drained by a single writer goroutine,
// so one slow or dead peer never blocks a broadcast.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	codec  *protocol.Codec
	logger *logrus.Logger

	writeChan chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
}

func newWSConn(id string, conn *websocket.Conn, codec *protocol.Codec, logger *logrus.Logger) *wsConn {
	return &wsConn{
		id:        id,
		conn:      conn,
		codec:     codec,
		logger:    logger,
		writeChan: make(chan []byte, 256),
		closeChan: make(chan struct{}),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

// Send queues a message for the writer goroutine. Sending to a closed or
// backed-up connection drops the frame; the peer is gone or about to be.
func (c *wsConn) Send(msg protocol.Message) error {
	data, err := c.codec.EncodeToBytes(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closeChan:
		return nil
	case c.writeChan <- data:
		return nil
	default:
		c.logger.WithField("client", c.id).Debug("write buffer full, dropping frame")
		return nil
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.closeChan:
			return
		case data := <-c.writeChan:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.logger.WithError(err).WithField("client", c.id).
					Debug("websocket write failed")
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		_ = c.conn.Close()
	})
}
