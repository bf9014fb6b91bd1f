// Package realtime bridges the in-process event bus onto websocket
// connections. Each connection owns one bus subscription; the hub only
// tracks membership so shutdown can close every socket.
package realtime

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/bracketops/tournament-core/events"
	"github.com/bracketops/tournament-core/metrics"
)

type Hub struct {
	bus    *events.Bus
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	clients    map[*Client]struct{}
}

func NewHub(bus *events.Bus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]struct{}),
	}
}

// Run owns the client set until ctx is cancelled, then closes every
// connection. Start it once, before the HTTP server accepts traffic.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			metrics.WSClients.Inc()
			h.logger.Debug("websocket client joined",
				slog.Int("clients", len(h.clients)),
				slog.Any("rooms", client.rooms),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			metrics.WSClients.Dec()
			h.logger.Debug("websocket client left", slog.Int("clients", len(h.clients)))

		case <-ctx.Done():
			for client := range h.clients {
				client.shutdown()
				delete(h.clients, client)
				metrics.WSClients.Dec()
			}
			return
		}
	}
}

// Connect attaches an upgraded connection to the given rooms and starts its
// pumps. The client detaches itself when either pump exits.
func (h *Hub) Connect(conn *websocket.Conn, rooms ...string) *Client {
	client := &Client{
		hub:   h,
		conn:  conn,
		sub:   h.bus.Subscribe(rooms...),
		rooms: rooms,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
	return client
}
