package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn is one admitted realtime session. The identity is fixed at admission;
// room membership lives in the hub.
type Conn struct {
	identity auth.Identity
	ws       *websocket.Conn
	send     chan []byte

	closeOnce sync.Once
}

func newConn(identity auth.Identity, ws *websocket.Conn, sendBuf int) *Conn {
	return &Conn{
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, sendBuf),
	}
}

func (c *Conn) Identity() auth.Identity {
	return c.identity
}

// forceClose tears the transport down. Safe to call more than once and with
// a nil transport (tests).
func (c *Conn) forceClose() {
	c.closeOnce.Do(func() {
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// WriteLoop drains the send buffer onto the wire. It exits when the hub
// closes the buffer on unregister, and keeps the peer alive with pings.
func (c *Conn) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.forceClose()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadLoop parses inbound commands and hands them to handle. It returns when
// the peer goes away or the connection is force-closed.
func (c *Conn) ReadLoop(handle func(*Conn, Command)) {
	defer c.forceClose()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: connection read error for user %s: %v", c.identity.UserID, err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		handle(c, cmd)
	}
}
