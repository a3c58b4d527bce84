package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

const defaultWriteWait = 10 * time.Second

// Conn is the transport a session pushes frames to.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(data []byte) error
	IsOpen() bool
	// Closed is closed once the peer disconnects or the conn is closed locally.
	Closed() <-chan struct{}
	Close() error
}

type wsConn struct {
	id        string
	ws        *websocket.Conn
	writeWait time.Duration

	writeMu   sync.Mutex
	closed    chan struct{}
	markOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn, writeWait time.Duration, maxMessageSize int64) *wsConn {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if maxMessageSize > 0 {
		ws.SetReadLimit(maxMessageSize)
	}

	c := &wsConn{
		id:        uuid.NewString(),
		ws:        ws,
		writeWait: writeWait,
		closed:    make(chan struct{}),
	}
	go c.readPump()
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *wsConn) Closed() <-chan struct{} { return c.closed }

func (c *wsConn) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *wsConn) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.markClosed()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.markClosed()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Close sends a normal-closure frame and releases the socket. Safe to call
// more than once.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.markClosed()

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait)); err != nil {
			log := logger.WithComponent("websocket")
			log.Debug().Err(err).Str("conn_id", c.id).Msg("Close message failed")
		}
		c.writeMu.Unlock()

		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *wsConn) markClosed() {
	c.markOnce.Do(func() { close(c.closed) })
}

// readPump drains inbound frames so control frames are handled. Clients are
// not expected to send anything.
func (c *wsConn) readPump() {
	log := logger.WithComponent("websocket")
	defer c.markClosed()

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("Unexpected close")
			}
			return
		}
	}
}

var _ Conn = (*wsConn)(nil)
