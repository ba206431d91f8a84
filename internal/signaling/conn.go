package signaling

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 1 * time.Second

var errSendQueueFull = errors.New("send queue full")

type connState int32

const (
	stateOpen connState = iota
	stateClosing
	stateClosed
)

// wsConn adapts a gorilla connection to hub.Conn. Outbound frames go through
// a bounded queue drained by writePump, which is the only writer of data
// frames; Send never blocks.
type wsConn struct {
	id    string
	ws    *websocket.Conn
	queue chan []byte

	pingInterval time.Duration

	state atomic.Int32

	closeOnce   sync.Once
	done        chan struct{}
	writerDone  chan struct{}
	closeCode   int
	closeReason string
}

func newWSConn(ws *websocket.Conn, queueLen int, pingInterval time.Duration) *wsConn {
	return &wsConn{
		id:           uuid.NewString(),
		ws:           ws,
		queue:        make(chan []byte, queueLen),
		pingInterval: pingInterval,
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
		closeCode:    websocket.CloseNormalClosure,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Open() bool {
	return connState(c.state.Load()) == stateOpen
}

func (c *wsConn) Send(data []byte) error {
	if !c.Open() {
		return websocket.ErrCloseSent
	}
	select {
	case c.queue <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

// Close asks writePump to flush the queue, send a normal close frame and
// release the socket.
func (c *wsConn) Close() error {
	c.closeWith(websocket.CloseNormalClosure, "")
	return nil
}

func (c *wsConn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.state.Store(int32(stateClosing))
		close(c.done)
	})
}

func (c *wsConn) writePump() {
	defer close(c.writerDone)
	defer func() {
		c.state.Store(int32(stateClosed))
		_ = c.ws.Close()
	}()

	var tick <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-c.queue:
			if err := c.write(data); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-tick:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			if c.closeCode != websocket.CloseAbnormalClosure {
				_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeReason), time.Now().Add(wsWriteWait))
			}
			return
		}
	}
}

// flush writes whatever is already queued so that a final error envelope
// precedes the close frame.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.queue:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
