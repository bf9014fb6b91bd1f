package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bracketops/tournament-core/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// The feed is one-way; inbound frames are only pings and close.
	maxMessageSize = 512
)

// Client is one websocket connection fed by one bus subscription.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	sub   *events.Subscription
	rooms []string

	closeOnce sync.Once
}

// detach is called by whichever pump exits first. Cancelling the
// subscription closes sub.C, which in turn stops the write pump.
func (c *Client) detach() {
	c.closeOnce.Do(func() {
		c.sub.Cancel()
		c.hub.unregister <- c
		c.conn.Close()
	})
}

// shutdown is the hub-initiated close used when Run's context ends. It
// skips the unregister channel because Run is already draining the set.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.sub.Cancel()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeWait))
		c.conn.Close()
	})
}

// readPump discards inbound frames and watches for disconnects. The
// application protocol never expects client messages, but reading is still
// required to process pongs and close frames.
func (c *Client) readPump() {
	defer c.detach()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump forwards bus events to the peer and keeps the connection alive
// with periodic pings. It exits when the subscription channel closes,
// either because the client detached or the bus cancelled a subscriber
// that stopped draining.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.detach()
	}()

	for {
		select {
		case evt, ok := <-c.sub.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			payload, err := json.Marshal(evt)
			if err != nil {
				c.hub.logger.Error("marshal event", "error", err, "event", evt.Event)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
