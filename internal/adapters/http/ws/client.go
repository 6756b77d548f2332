package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const controlBuffer = 8

// client owns the write side of one connection. Writes happen on its own
// goroutine so a slow host never blocks the avatar loop.
//
// Frames and play commands travel on separate channels. Frames may be
// dropped when the host lags; play commands never are, and the writer
// drains them first.
type client struct {
	id        string
	conn      *websocket.Conn
	sendCh    chan []byte
	ctrlCh    chan []byte
	done      chan struct{}
	stopOnce  sync.Once
	writeWait time.Duration
	pingEvery time.Duration
}

func newClient(id string, conn *websocket.Conn, buffer int, writeWait, pingEvery time.Duration) *client {
	c := &client{
		id:        id,
		conn:      conn,
		sendCh:    make(chan []byte, buffer),
		ctrlCh:    make(chan []byte, controlBuffer),
		done:      make(chan struct{}),
		writeWait: writeWait,
		pingEvery: pingEvery,
	}
	go c.run()
	return c
}

func (c *client) run() {
	ping := time.NewTicker(c.pingEvery)
	defer ping.Stop()
	for {
		select {
		case msg := <-c.ctrlCh:
			if !c.write(websocket.TextMessage, msg) {
				return
			}
			continue
		default:
		}

		select {
		case msg := <-c.ctrlCh:
			if !c.write(websocket.TextMessage, msg) {
				return
			}
		case msg := <-c.sendCh:
			if !c.write(websocket.TextMessage, msg) {
				return
			}
		case <-ping.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) write(kind int, data []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(kind, data); err != nil {
		c.stop()
		return false
	}
	return true
}

func (c *client) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// send queues a frame without blocking. A full buffer drops the frame.
func (c *client) send(data []byte) bool {
	if c.stopped() {
		return false
	}
	select {
	case c.sendCh <- data:
		return true
	default:
		return false
	}
}

// sendControl queues a play command without blocking. A host that cannot
// take it is disconnected; it gets the latest command again when it
// reconnects.
func (c *client) sendControl(data []byte) bool {
	if c.stopped() {
		return false
	}
	select {
	case c.ctrlCh <- data:
		return true
	default:
		c.stop()
		return false
	}
}

func (c *client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
